package model

import "time"

const FeedCursorCollection = "watchrss"

// FeedCursor is owned by the RSS collaborator (spec §3) - one per feed URL,
// tracking the last entry seen so a restarted poller does not re-ingest an
// entire feed's history. It is a belt-and-braces dedupe: the authoritative
// guard against duplicate Downloads is the unique index on Download.url.
type FeedCursor struct {
	FeedURL     string    `json:"feed_url"`
	LastEntryID string    `json:"last_entry_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}
