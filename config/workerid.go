package config

import "github.com/teris-io/shortid"

// newWorkerID mints the random alphanumeric token spec §3 requires for a
// freshly started Worker.
func newWorkerID() (string, error) {
	return shortid.Generate()
}
