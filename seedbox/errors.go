package seedbox

import "errors"

// Sentinel errors the submit routine and the hook layer classify on
// (spec §4.9 "Default implementation: classify TooLargeTorrent ...,
// TorrentHashCalculation ..., others -> release-and-retry").
var (
	// ErrTooLarge is returned by AddTorrent when the seedbox rejects a
	// torrent for exceeding its storage quota.
	ErrTooLarge = errors.New("seedbox: torrent exceeds size limit")

	// ErrHashCalculation is returned when a download's URI cannot be
	// turned into an info hash (malformed magnet, unparsable .torrent).
	ErrHashCalculation = errors.New("seedbox: could not compute torrent hash")

	// ErrNotFound names a previously submitted torrent that has disappeared
	// from the account. Nothing in this package returns it; the orchestrator
	// detects a missing torrent by its absence from ListTorrents' result.
	ErrNotFound = errors.New("seedbox: torrent not found")

	// ErrAuth is returned when a request still gets a 401 after a token
	// refresh, or when the refresh (login) itself fails - an
	// unrecoverable credential problem, not a transient one. Spec §7/
	// §4.10: this is the one error class that re-raises out of the
	// orchestrator loops instead of being logged and retried; it kills
	// the worker so its heartbeat lapses and the reaper can clean up.
	ErrAuth = errors.New("seedbox: authentication failed")
)
