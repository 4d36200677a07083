// Package model defines the persistent entities of the work-scheduling state
// machine - Download, Account, Worker - and the transitions between their
// statuses. Every transition goes through the store adapter; nothing in this
// package talks to buntdb directly.
package model

import "time"

// DownloadStatus is the lifecycle state of a Download record.
type DownloadStatus string

const (
	DownloadPending        DownloadStatus = "PENDING"
	DownloadProcessing     DownloadStatus = "PROCESSING"
	DownloadError          DownloadStatus = "ERROR"
	DownloadTimeout        DownloadStatus = "TIMEOUT"
	DownloadTooLarge       DownloadStatus = "TOO_LARGE"
	DownloadInvalidTorrent DownloadStatus = "INVALID_TORRENT"
)

// IsTerminal reports whether status carries a TTL and is no longer worked on.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case DownloadError, DownloadTimeout, DownloadTooLarge, DownloadInvalidTorrent:
		return true
	default:
		return false
	}
}

// Download is one URL to fetch and re-upload. The Collection name matches
// the persisted collection from spec §6.
const DownloadCollection = "downloads"

type Download struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Name     string         `json:"name"`
	Status   DownloadStatus `json:"status"`
	Hash     string         `json:"hash,omitempty"`
	LockedBy string         `json:"locked_by,omitempty"`
	Retries  int            `json:"retries"`
	ExpireAt *time.Time     `json:"expire_at,omitempty"`
}

// NewDownload builds a freshly ingested, unclaimed, PENDING record.
func NewDownload(id, url, name string) *Download {
	return &Download{
		ID:     id,
		URL:    url,
		Name:   name,
		Status: DownloadPending,
	}
}

// MarkAsProcessing anchors the hash computed at submit time and clears the
// claim lock - the worker no longer needs locked_by once an Account owns the
// download via download_id (I1).
func (d *Download) MarkAsProcessing(hash string) {
	d.Status = DownloadProcessing
	d.Hash = hash
	d.LockedBy = ""
}

// MarkAsPending returns the record to the claimable pool. Used by the
// reaper, by claim-protocol rollback, and by the not-found/reset path.
func (d *Download) MarkAsPending() {
	d.Status = DownloadPending
	d.Hash = ""
	d.LockedBy = ""
}

// stopWithStatus is the shared terminal-transition helper behind
// MarkAsTimeout/MarkAsTooLarge/MarkAsInvalidTorrent and the ERROR branch of
// MarkAsFailed (spec §4.4 `_stop_with_status`).
func (d *Download) stopWithStatus(status DownloadStatus, expireIn time.Duration) {
	d.Status = status
	d.Hash = ""
	d.LockedBy = ""
	if expireIn > 0 {
		at := time.Now().Add(expireIn)
		d.ExpireAt = &at
	}
}

// MarkAsFailed accounts a failed attempt. Soft failures (transient I/O) do
// not burn the retry budget (spec §4.4). Once retries reach maxRetries the
// download is retired to ERROR with a TTL; otherwise it goes back to PENDING.
func (d *Download) MarkAsFailed(soft bool, maxRetries int, errorExpiry time.Duration) {
	if !soft {
		d.Retries++
	}
	if d.Retries >= maxRetries {
		d.stopWithStatus(DownloadError, errorExpiry)
		return
	}
	d.MarkAsPending()
}

func (d *Download) MarkAsTimeout(expiry time.Duration) {
	d.stopWithStatus(DownloadTimeout, expiry)
}

func (d *Download) MarkAsTooLarge(expiry time.Duration) {
	d.stopWithStatus(DownloadTooLarge, expiry)
}

func (d *Download) MarkAsInvalidTorrent(expiry time.Duration) {
	d.stopWithStatus(DownloadInvalidTorrent, expiry)
}
