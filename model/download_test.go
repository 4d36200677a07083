package model_test

import (
	"testing"
	"time"

	"github.com/seedboxsh/rssbox/model"
)

func TestNewDownloadIsPending(t *testing.T) {
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	if d.Status != model.DownloadPending {
		t.Errorf("Status = %q, want PENDING", d.Status)
	}
	if d.Hash != "" || d.LockedBy != "" {
		t.Errorf("fresh download should have no hash/lock, got hash=%q locked_by=%q", d.Hash, d.LockedBy)
	}
}

func TestMarkAsProcessingClearsLock(t *testing.T) {
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	d.LockedBy = "worker-1"
	d.MarkAsProcessing("ABCDEF")
	if d.Status != model.DownloadProcessing {
		t.Errorf("Status = %q, want PROCESSING", d.Status)
	}
	if d.Hash != "ABCDEF" {
		t.Errorf("Hash = %q, want ABCDEF", d.Hash)
	}
	if d.LockedBy != "" {
		t.Errorf("LockedBy = %q, want empty", d.LockedBy)
	}
}

func TestMarkAsPendingClearsHashAndLock(t *testing.T) {
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	d.MarkAsProcessing("ABCDEF")
	d.LockedBy = "worker-1"
	d.MarkAsPending()
	if d.Status != model.DownloadPending {
		t.Errorf("Status = %q, want PENDING", d.Status)
	}
	if d.Hash != "" {
		t.Errorf("Hash = %q, want empty", d.Hash)
	}
	if d.LockedBy != "" {
		t.Errorf("LockedBy = %q, want empty", d.LockedBy)
	}
}

func TestMarkAsFailedRetriesBeforeError(t *testing.T) {
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	d.MarkAsProcessing("ABCDEF")

	d.MarkAsFailed(false, 3, time.Hour)
	if d.Status != model.DownloadPending {
		t.Fatalf("after 1st hard failure, Status = %q, want PENDING", d.Status)
	}
	if d.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", d.Retries)
	}

	d.MarkAsProcessing("ABCDEF")
	d.MarkAsFailed(false, 3, time.Hour)
	d.MarkAsProcessing("ABCDEF")
	d.MarkAsFailed(false, 3, time.Hour)

	if d.Status != model.DownloadError {
		t.Fatalf("after reaching maxRetries, Status = %q, want ERROR", d.Status)
	}
	if d.ExpireAt == nil {
		t.Error("terminal ERROR status should carry an expire_at")
	}
}

func TestMarkAsFailedSoftDoesNotBurnRetries(t *testing.T) {
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	d.MarkAsProcessing("ABCDEF")
	d.MarkAsFailed(true, 1, time.Hour)
	if d.Retries != 0 {
		t.Errorf("Retries = %d, want 0 for a soft failure", d.Retries)
	}
	if d.Status != model.DownloadPending {
		t.Errorf("Status = %q, want PENDING (soft failure does not exhaust immediately)", d.Status)
	}
}

func TestTerminalTransitionsSetExpiry(t *testing.T) {
	cases := []struct {
		name   string
		apply  func(d *model.Download)
		status model.DownloadStatus
	}{
		{"timeout", func(d *model.Download) { d.MarkAsTimeout(time.Hour) }, model.DownloadTimeout},
		{"too_large", func(d *model.Download) { d.MarkAsTooLarge(time.Hour) }, model.DownloadTooLarge},
		{"invalid_torrent", func(d *model.Download) { d.MarkAsInvalidTorrent(time.Hour) }, model.DownloadInvalidTorrent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := model.NewDownload("d1", "magnet:?xt=1", "example")
			d.MarkAsProcessing("ABCDEF")
			c.apply(d)
			if d.Status != c.status {
				t.Errorf("Status = %q, want %q", d.Status, c.status)
			}
			if d.Hash != "" {
				t.Errorf("Hash = %q, want cleared on terminal transition", d.Hash)
			}
			if d.ExpireAt == nil {
				t.Error("expected expire_at to be set")
			}
			if !d.Status.IsTerminal() {
				t.Errorf("%q.IsTerminal() = false, want true", d.Status)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if model.DownloadPending.IsTerminal() || model.DownloadProcessing.IsTerminal() {
		t.Error("PENDING/PROCESSING must not be terminal")
	}
}
