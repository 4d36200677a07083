// Package store defines the document-store contract every other package in
// rssbox programs against (spec §4.1). It is intentionally thin: four
// collections, a handful of verbs, and one load-bearing primitive -
// FindOneAndUpdate - that MUST be linearisable on whatever backend
// implements it. See store/buntstore for the concrete implementation.
package store

import "errors"

// Collection names, fixed by spec §6.
const (
	Downloads = "downloads"
	Accounts  = "accounts"
	Workers   = "workers"
	WatchRSS  = "watchrss"
)

var (
	// ErrNotFound is returned by Get/FindOneAndUpdate when no document
	// matches. Translated at the buntstore boundary from the backend's own
	// not-found error so nothing above store/ imports buntdb.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned by Insert when a unique-index collision is
	// absorbed by the caller (spec: "insertions that collide are absorbed").
	ErrConflict = errors.New("store: unique index conflict")
)

// Doc is a single persisted document: collection + id + arbitrary JSON body.
// Callers marshal/unmarshal their own typed structs into Body.
type Doc struct {
	Collection string
	ID         string
	Body       []byte
}

// Filter matches a document's decoded body. Implementations decode Body into
// a map[string]interface{} (cheap, store-agnostic) and evaluate predicates
// against it - see FieldEquals/FieldIn/FieldEmpty in filter.go.
type Filter func(body map[string]interface{}) bool

// Update mutates a decoded document body in place before it is
// re-serialised and written back.
type Update func(body map[string]interface{})

// Less orders two decoded bodies for FindOneAndUpdate's "pick one among
// several matches" step (spec: sort by priority desc / last_used_at asc /
// last_checked_at asc). Less(a, b) reports whether a sorts before b.
type Less func(a, b map[string]interface{}) bool

// Store is the full adapter contract. A Store handle is a process-scoped
// singleton (spec §9 "Global state") with explicit Close.
type Store interface {
	// Insert writes a new document. If uniqueOn names a field and an
	// existing document in the collection already has that value,
	// Insert returns ErrConflict and existingID set to that document's id
	// (spec: "insertions that collide are absorbed").
	Insert(collection, id string, body interface{}, uniqueOn string) (existingID string, err error)

	// Get decodes the document at collection/id into out. Returns
	// ErrNotFound if absent.
	Get(collection, id string, out interface{}) error

	// UpdateOne fully replaces the document at collection/id with body.
	// Returns ErrNotFound if absent.
	UpdateOne(collection, id string, body interface{}) error

	// DeleteOne removes the document at collection/id. No error if absent.
	DeleteOne(collection, id string) error

	// DeleteMany removes every document in collection matching filter and
	// returns how many were removed.
	DeleteMany(collection string, filter Filter) (int, error)

	// FindOneAndUpdate is the atomic claim primitive (spec §4.1). It scans
	// collection for documents matching filter, picks the one that sorts
	// first under less (nil means "first match wins"), applies update, and
	// persists the result - all within one linearisable transaction. The
	// full decoded (and now-updated) document is unmarshaled into out.
	// Returns ErrNotFound if nothing matched.
	FindOneAndUpdate(collection string, filter Filter, less Less, update Update, out interface{}) error

	// Find returns every document in collection matching filter, decoded
	// into the slice pointed to by out (spec: read-only, eventual - backs
	// the reaper's sweeps, which tolerate slightly stale reads).
	Find(collection string, filter Filter, out interface{}) error

	// Close releases the underlying handle. Safe to call once at shutdown.
	Close() error
}
