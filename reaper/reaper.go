// Package reaper implements spec §4.3: a periodic sweep that deletes stale
// Worker records and unwinds any Account/Download left locked by them,
// closing the crash windows the claim protocol and the two-document
// sessions in claim/session.go leave open.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

type Reaper struct {
	s                 store.Store
	heartbeatInterval time.Duration
	interval          time.Duration
}

func New(s store.Store, heartbeatInterval, reaperInterval time.Duration) *Reaper {
	return &Reaper{s: s, heartbeatInterval: heartbeatInterval, interval: reaperInterval}
}

// Run sweeps once immediately, then every interval, until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	if err := r.sweep(); err != nil {
		glog.Warningf("reaper: sweep failed: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.sweep(); err != nil {
				glog.Warningf("reaper: sweep failed: %v", err)
			}
		}
	}
}

// sweep runs the four ordered steps of spec §4.3.
func (r *Reaper) sweep() error {
	threshold := time.Now().Add(-2 * r.heartbeatInterval)

	deadWorkers, err := r.reapDeadWorkers(threshold)
	if err != nil {
		return fmt.Errorf("reaper: step 1 (dead workers): %w", err)
	}
	if len(deadWorkers) > 0 {
		glog.Infof("reaper: reclaimed %d dead worker(s)", len(deadWorkers))
	}

	if err := r.unwindAccounts(deadWorkers); err != nil {
		return fmt.Errorf("reaper: step 2 (accounts): %w", err)
	}
	if err := r.unwindLockedDownloads(deadWorkers); err != nil {
		return fmt.Errorf("reaper: step 3 (locked downloads): %w", err)
	}
	if err := r.unwindOrphanedDownloads(); err != nil {
		return fmt.Errorf("reaper: step 4 (orphaned downloads): %w", err)
	}
	return nil
}

// reapDeadWorkers deletes every Worker whose last_heartbeat predates
// threshold and returns their ids, for use as the "stale" set by the
// remaining steps.
func (r *Reaper) reapDeadWorkers(threshold time.Time) (map[string]bool, error) {
	var workers []model.Worker
	filter := func(body map[string]interface{}) bool {
		ts, ok := body["last_heartbeat"].(string)
		if !ok {
			return true // malformed record, treat as dead
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return true
		}
		return t.Before(threshold)
	}
	if err := r.s.Find(store.Workers, filter, &workers); err != nil {
		return nil, err
	}

	dead := make(map[string]bool, len(workers))
	for _, w := range workers {
		dead[w.ID] = true
		if err := r.s.DeleteOne(store.Workers, w.ID); err != nil {
			return dead, err
		}
	}
	return dead, nil
}

func (r *Reaper) staleLock(lockedBy string, deadWorkers map[string]bool) bool {
	if lockedBy == "" {
		return false
	}
	if deadWorkers[lockedBy] {
		return true
	}
	var w model.Worker
	err := r.s.Get(store.Workers, lockedBy, &w)
	return err == store.ErrNotFound
}

// unwindAccounts is spec §4.3 step 2: any Account in {PROCESSING, UPLOADING,
// LOCKED} held by a stale or missing worker is recovered. LOCKED/UPLOADING
// collapse to DOWNLOADING (someone was already polling/uploading - another
// worker can safely re-poll); PROCESSING (claimed, nothing submitted yet)
// collapses to IDLE.
func (r *Reaper) unwindAccounts(deadWorkers map[string]bool) error {
	var accounts []model.Account
	filter := store.FieldIn("status",
		string(model.AccountProcessing), string(model.AccountUploading), string(model.AccountLocked))
	if err := r.s.Find(store.Accounts, filter, &accounts); err != nil {
		return err
	}
	for i := range accounts {
		a := &accounts[i]
		if !r.staleLock(a.LockedBy, deadWorkers) {
			continue
		}
		switch a.Status {
		case model.AccountLocked, model.AccountUploading:
			a.Unlock(model.AccountDownloading)
		default:
			a.MarkAsIdle()
		}
		if err := r.s.UpdateOne(store.Accounts, a.ID, a); err != nil {
			return err
		}
	}
	return nil
}

// unwindLockedDownloads is spec §4.3 step 3: any Download in {PENDING,
// PROCESSING} held by a stale or missing worker returns to PENDING, with its
// hash and lock cleared.
func (r *Reaper) unwindLockedDownloads(deadWorkers map[string]bool) error {
	var downloads []model.Download
	filter := store.FieldIn("status", string(model.DownloadPending), string(model.DownloadProcessing))
	if err := r.s.Find(store.Downloads, filter, &downloads); err != nil {
		return err
	}
	for i := range downloads {
		d := &downloads[i]
		if !r.staleLock(d.LockedBy, deadWorkers) {
			continue
		}
		d.MarkAsPending()
		if err := r.s.UpdateOne(store.Downloads, d.ID, d); err != nil {
			return err
		}
	}
	return nil
}

// unwindOrphanedDownloads is spec §4.3 step 4: a Download left in
// PROCESSING with no Account pointing at it via download_id - the crash
// window between the two writes of claim.AttachDownload - returns to
// PENDING regardless of locked_by/worker liveness.
func (r *Reaper) unwindOrphanedDownloads() error {
	var downloads []model.Download
	if err := r.s.Find(store.Downloads, store.FieldEquals("status", string(model.DownloadProcessing)), &downloads); err != nil {
		return err
	}
	if len(downloads) == 0 {
		return nil
	}

	var accounts []model.Account
	if err := r.s.Find(store.Accounts, nil, &accounts); err != nil {
		return err
	}
	owned := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if a.DownloadID != "" {
			owned[a.DownloadID] = true
		}
	}

	for i := range downloads {
		d := &downloads[i]
		if owned[d.ID] {
			continue
		}
		d.MarkAsPending()
		if err := r.s.UpdateOne(store.Downloads, d.ID, d); err != nil {
			return err
		}
	}
	return nil
}
