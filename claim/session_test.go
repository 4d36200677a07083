package claim_test

import (
	"testing"
	"time"

	"github.com/seedboxsh/rssbox/claim"
	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

func seedAccountAndDownload(t *testing.T, s store.Store) (*model.Account, *model.Download) {
	t.Helper()
	a := &model.Account{ID: "a1", Status: model.AccountDownloading, DownloadID: "d1"}
	if _, err := s.Insert(store.Accounts, a.ID, a, ""); err != nil {
		t.Fatalf("Insert account: %v", err)
	}
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	d.MarkAsProcessing("ABCDEF")
	if _, err := s.Insert(store.Downloads, d.ID, d, ""); err != nil {
		t.Fatalf("Insert download: %v", err)
	}
	return a, d
}

func TestAttachDownloadOrdersDownloadBeforeAccount(t *testing.T) {
	s := openTestStore(t)
	a := &model.Account{ID: "a1", Status: model.AccountProcessing}
	d := model.NewDownload("d1", "magnet:?xt=1", "example")
	if _, err := s.Insert(store.Accounts, a.ID, a, ""); err != nil {
		t.Fatalf("Insert account: %v", err)
	}
	if _, err := s.Insert(store.Downloads, d.ID, d, ""); err != nil {
		t.Fatalf("Insert download: %v", err)
	}

	if err := claim.AttachDownload(s, a, d, "ABCDEF"); err != nil {
		t.Fatalf("AttachDownload: %v", err)
	}

	var gotD model.Download
	if err := s.Get(store.Downloads, "d1", &gotD); err != nil {
		t.Fatalf("Get download: %v", err)
	}
	if gotD.Status != model.DownloadProcessing || gotD.Hash != "ABCDEF" {
		t.Errorf("download = %+v, want PROCESSING with hash ABCDEF", gotD)
	}

	var gotA model.Account
	if err := s.Get(store.Accounts, "a1", &gotA); err != nil {
		t.Fatalf("Get account: %v", err)
	}
	if gotA.Status != model.AccountDownloading || gotA.DownloadID != "d1" {
		t.Errorf("account = %+v, want DOWNLOADING pointing at d1", gotA)
	}
}

func TestResetIdlesAccountAndRependsDownload(t *testing.T) {
	s := openTestStore(t)
	a, d := seedAccountAndDownload(t, s)

	if err := claim.Reset(s, a, d); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if a.Status != model.AccountIdle {
		t.Errorf("account status = %q, want IDLE", a.Status)
	}
	if d.Status != model.DownloadPending || d.Hash != "" {
		t.Errorf("download = %+v, want PENDING with no hash", d)
	}

	var gotA model.Account
	if err := s.Get(store.Accounts, "a1", &gotA); err != nil {
		t.Fatalf("Get account: %v", err)
	}
	if gotA.Status != model.AccountIdle {
		t.Error("reset must persist the account's new state")
	}
}

func TestFailBurnsRetryAndIdlesAccount(t *testing.T) {
	s := openTestStore(t)
	a, d := seedAccountAndDownload(t, s)

	if err := claim.Fail(s, a, d, false, 5, time.Hour); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if a.Status != model.AccountIdle {
		t.Errorf("account status = %q, want IDLE", a.Status)
	}
	if d.Retries != 1 {
		t.Errorf("Retries = %d, want 1", d.Retries)
	}
	if d.Status != model.DownloadPending {
		t.Errorf("Status = %q, want PENDING (retry budget not yet exhausted)", d.Status)
	}
}

func TestTimeoutMarksDownloadTimeoutAndIdlesAccount(t *testing.T) {
	s := openTestStore(t)
	a, d := seedAccountAndDownload(t, s)

	if err := claim.Timeout(s, a, d, time.Hour); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if a.Status != model.AccountIdle {
		t.Errorf("account status = %q, want IDLE", a.Status)
	}
	if d.Status != model.DownloadTimeout {
		t.Errorf("download status = %q, want TIMEOUT", d.Status)
	}
	if d.ExpireAt == nil {
		t.Error("expected expire_at on a terminal TIMEOUT download")
	}

	var gotD model.Download
	if err := s.Get(store.Downloads, "d1", &gotD); err != nil {
		t.Fatalf("Get download: %v", err)
	}
	if gotD.Status != model.DownloadTimeout {
		t.Error("Timeout must persist the download's new status")
	}
}

func TestCompleteIdlesAccountAndDeletesDownload(t *testing.T) {
	s := openTestStore(t)
	a, d := seedAccountAndDownload(t, s)

	if err := claim.Complete(s, a, d.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if a.Status != model.AccountIdle {
		t.Errorf("account status = %q, want IDLE", a.Status)
	}
	if err := s.Get(store.Downloads, "d1", &model.Download{}); err != store.ErrNotFound {
		t.Errorf("Get after Complete = %v, want ErrNotFound", err)
	}
}
