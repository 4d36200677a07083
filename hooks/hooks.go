// Package hooks implements the policy capability set of spec §4.9: a small
// set of callbacks invoked at the decision points where "retry" vs
// "terminal" semantics differ by feed provider. The orchestrator and feed
// packages depend only on the Hooks interface; Default supplies the
// baseline behaviour described in the spec and is what main wires unless a
// caller swaps in a custom implementation.
package hooks

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/seedbox"
)

// Entry is one RSS feed item, as handed to OnNewEntry before it becomes a
// Download (spec §6 "RSS collaborator").
type Entry struct {
	ID    string
	Title string
	Link  string
}

// Hooks is the full capability set. Every method has a sensible default in
// Default; implementations embed Default and override individually.
type Hooks interface {
	// OnNewEntry filters or rewrites a feed entry before it is inserted as
	// a Download. Returning ok=false drops the entry.
	OnNewEntry(entry Entry) (rewritten Entry, ok bool)

	// OnSonicbitDownloadNotFound is invoked when a submitted torrent has
	// disappeared from the account's torrent list. true = reset and
	// retry; false = the hook has already driven terminal state.
	OnSonicbitDownloadNotFound(a *model.Account, d *model.Download) bool

	// OnDownloadTimeout is advisory: the download's deadline fired while
	// still incomplete.
	OnDownloadTimeout(d *model.Download)

	// OnBeforeUploadError classifies an upload failure before
	// mark_as_failed runs. true = soft (retry budget untouched),
	// false = hard (burns a retry).
	OnBeforeUploadError(a *model.Account, d *model.Download, err error) (soft bool)

	// OnAfterUploadError is advisory, called once mark_as_failed has
	// already been applied.
	OnAfterUploadError(a *model.Account, d *model.Download, err error)

	// OnUploadComplete is advisory, called after the account and
	// download have both reached their completed state.
	OnUploadComplete(a *model.Account, d *model.Download, filesUploaded int)

	// OnAddDownloadError classifies a submit failure. true = release d
	// and a back to the pool for a later retry; false = the hook has
	// already driven d/a to terminal state and the orchestrator must not
	// touch them further.
	OnAddDownloadError(a *model.Account, d *model.Download, err error) bool
}

// Default is the baseline policy described by spec §4.9: release-and-retry
// for anything not specifically classified, with TooLargeTorrent and
// hash-calculation failures routed to their matching terminal statuses.
type Default struct {
	TooLargeExpiry       time.Duration
	InvalidTorrentExpiry time.Duration
}

var _ Hooks = Default{}

func (Default) OnNewEntry(entry Entry) (Entry, bool) {
	return entry, true
}

func (Default) OnSonicbitDownloadNotFound(a *model.Account, d *model.Download) bool {
	glog.Infof("hooks: download %s missing from account %s's torrent list, resetting", d.ID, a.ID)
	return true
}

func (Default) OnDownloadTimeout(d *model.Download) {
	glog.Infof("hooks: download %s timed out", d.ID)
}

// OnBeforeUploadError treats every upload-stage error as hard: it always
// returns false, so each failure burns a retry. No error, transient I/O
// included, is classified as soft.
func (Default) OnBeforeUploadError(a *model.Account, dl *model.Download, err error) bool {
	return false
}

func (Default) OnAfterUploadError(a *model.Account, d *model.Download, err error) {
	glog.Warningf("hooks: upload failed for download %s on account %s: %v", d.ID, a.ID, err)
}

func (Default) OnUploadComplete(a *model.Account, d *model.Download, filesUploaded int) {
	glog.Infof("hooks: download %s uploaded (%d files) via account %s", d.ID, filesUploaded, a.ID)
}

// OnAddDownloadError is the one hook the spec gives a concrete default
// classification for: TooLargeTorrent marks the download TOO_LARGE (no
// retry burn, TTL so a re-ingested duplicate link is suppressed);
// ErrHashCalculation marks it INVALID_TORRENT likewise; anything else
// releases the account and download for a later retry.
func (d Default) OnAddDownloadError(a *model.Account, dl *model.Download, err error) bool {
	switch {
	case errors.Is(err, seedbox.ErrTooLarge):
		dl.MarkAsTooLarge(d.TooLargeExpiry)
		a.MarkAsIdle()
		return false
	case errors.Is(err, seedbox.ErrHashCalculation):
		dl.MarkAsInvalidTorrent(d.InvalidTorrentExpiry)
		a.MarkAsIdle()
		return false
	default:
		glog.Warningf("hooks: submit failed for download %s on account %s: %v", dl.ID, a.ID, err)
		return true
	}
}
