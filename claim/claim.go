// Package claim implements the atomic acquisition protocol of spec §4.6:
// workers compete for PENDING downloads and free/in-flight accounts purely
// through store.Store.FindOneAndUpdate, never through in-process locking.
package claim

import (
	"time"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

// PendingDownload atomically claims one PENDING, unlocked Download for
// workerID. Returns store.ErrNotFound if none is available.
func PendingDownload(s store.Store, workerID string) (*model.Download, error) {
	filter := store.And(
		store.FieldEquals("status", string(model.DownloadPending)),
		store.FieldEmpty("locked_by"),
	)
	update := func(body map[string]interface{}) {
		body["locked_by"] = workerID
	}
	var d model.Download
	if err := s.FindOneAndUpdate(store.Downloads, filter, nil, update, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// FreeAccount atomically claims one IDLE account for workerID, preferring
// higher priority and then the least-recently-used (spec §4.6).
func FreeAccount(s store.Store, workerID string) (*model.Account, error) {
	filter := store.FieldEqualsOrEmpty("status", string(model.AccountIdle))
	less := store.CombineLess(
		store.ByField("priority", true),
		store.ByField("last_used_at", false),
	)
	now := time.Now()
	update := func(body map[string]interface{}) {
		body["status"] = string(model.AccountProcessing)
		body["locked_by"] = workerID
		body["last_used_at"] = now
	}
	var a model.Account
	if err := s.FindOneAndUpdate(store.Accounts, filter, less, update, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DownloadingAccountToCheck atomically claims one DOWNLOADING, unlocked
// account to poll, in last_checked_at order (fairness - spec §4.6).
func DownloadingAccountToCheck(s store.Store, workerID string) (*model.Account, error) {
	filter := store.And(
		store.FieldEquals("status", string(model.AccountDownloading)),
		store.FieldEmpty("locked_by"),
	)
	less := store.ByField("last_checked_at", false)
	now := time.Now()
	update := func(body map[string]interface{}) {
		body["status"] = string(model.AccountLocked)
		body["locked_by"] = workerID
		body["last_checked_at"] = now
	}
	var a model.Account
	if err := s.FindOneAndUpdate(store.Accounts, filter, less, update, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UnlockDownload clears a Download's locked_by without otherwise changing
// its state. Required when a worker obtains a Download but fails to obtain
// an Account (spec §4.6) so the download remains claimable.
func UnlockDownload(s store.Store, downloadID string) error {
	var d model.Download
	if err := s.Get(store.Downloads, downloadID, &d); err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	d.LockedBy = ""
	return s.UpdateOne(store.Downloads, downloadID, &d)
}
