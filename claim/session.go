package claim

import (
	"fmt"
	"time"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

// AttachDownload performs the paired transition of spec §4.5
// mark_as_downloading: the Download moves to PROCESSING with hash set, then
// the Account moves to DOWNLOADING and references it. The store has no
// cross-collection transaction, so the order is load-bearing: the Download
// write lands first, leaving only the crash window the reaper's step 4
// already closes (a PROCESSING Download with no Account pointing at it).
func AttachDownload(s store.Store, account *model.Account, download *model.Download, hash string) error {
	download.MarkAsProcessing(hash)
	if err := s.UpdateOne(store.Downloads, download.ID, download); err != nil {
		return fmt.Errorf("claim: persist download %s as processing: %w", download.ID, err)
	}
	account.MarkAsDownloading(download.ID)
	if err := s.UpdateOne(store.Accounts, account.ID, account); err != nil {
		return fmt.Errorf("claim: persist account %s as downloading: %w", account.ID, err)
	}
	return nil
}

// Reset performs spec §4.5 reset: Account.mark_as_idle, Download.mark_as_pending.
// Used when check_downloads finds an inconsistency (missing hash, or the
// seedbox no longer has the torrent and the hook says to retry).
func Reset(s store.Store, account *model.Account, download *model.Download) error {
	account.MarkAsIdle()
	if err := s.UpdateOne(store.Accounts, account.ID, account); err != nil {
		return fmt.Errorf("claim: reset account %s: %w", account.ID, err)
	}
	if download != nil {
		download.MarkAsPending()
		if err := s.UpdateOne(store.Downloads, download.ID, download); err != nil {
			return fmt.Errorf("claim: reset download %s: %w", download.ID, err)
		}
	}
	return nil
}

// Fail performs spec §4.5 mark_as_failed: Account.mark_as_idle,
// Download.mark_as_failed(soft).
func Fail(s store.Store, account *model.Account, download *model.Download, soft bool, maxRetries int, errorExpiry time.Duration) error {
	account.MarkAsIdle()
	if err := s.UpdateOne(store.Accounts, account.ID, account); err != nil {
		return fmt.Errorf("claim: idle account %s after failure: %w", account.ID, err)
	}
	download.MarkAsFailed(soft, maxRetries, errorExpiry)
	if err := s.UpdateOne(store.Downloads, download.ID, download); err != nil {
		return fmt.Errorf("claim: persist failed download %s: %w", download.ID, err)
	}
	return nil
}

// Timeout performs the paired transition behind Account.download_timeout
// (spec §4.5/§4.8): the Download moves to the terminal TIMEOUT status and
// the Account that was watching it is released to IDLE.
func Timeout(s store.Store, account *model.Account, download *model.Download, expiry time.Duration) error {
	account.MarkAsIdle()
	if err := s.UpdateOne(store.Accounts, account.ID, account); err != nil {
		return fmt.Errorf("claim: idle account %s after download timeout: %w", account.ID, err)
	}
	download.MarkAsTimeout(expiry)
	if err := s.UpdateOne(store.Downloads, download.ID, download); err != nil {
		return fmt.Errorf("claim: persist timed-out download %s: %w", download.ID, err)
	}
	return nil
}

// Complete performs spec §4.5 mark_as_completed: Account.mark_as_idle,
// Download.delete.
func Complete(s store.Store, account *model.Account, downloadID string) error {
	account.MarkAsIdle()
	if err := s.UpdateOne(store.Accounts, account.ID, account); err != nil {
		return fmt.Errorf("claim: idle account %s after completion: %w", account.ID, err)
	}
	if err := s.DeleteOne(store.Downloads, downloadID); err != nil {
		return fmt.Errorf("claim: delete completed download %s: %w", downloadID, err)
	}
	return nil
}
