// Package orchestrator implements the two bounded work loops of spec §4.7
// and §4.8: start_downloads claims work and submits it to a seedbox
// account; check_downloads polls in-flight accounts, uploads on
// completion, and drives timeout/retry/terminal transitions through the
// policy hook surface. Grounded directly on the source's
// SonicBitClient.start_downloads/check_downloads.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/seedboxsh/rssbox/claim"
	"github.com/seedboxsh/rssbox/hooks"
	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/seedbox"
	"github.com/seedboxsh/rssbox/store"
	"github.com/seedboxsh/rssbox/upload"
)

const pollBackoff = 5 * time.Second

// Uploader is the subset of upload.FileHandler the orchestrator drives;
// narrowed to an interface so tests can substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, accountID string, d *model.Download, t seedbox.Torrent) (int, error)
}

var _ Uploader = (*upload.FileHandler)(nil)

// Orchestrator owns the store, seedbox client, uploader, and hook set a
// single worker process needs to run both loops.
type Orchestrator struct {
	s          store.Store
	workerID   string
	seedbox    seedbox.Client
	uploader   Uploader
	hooks      hooks.Hooks
	httpClient *http.Client

	downloadTimeout       time.Duration
	downloadRetries       int
	downloadErrorExpiry   time.Duration
	downloadTimeoutExpiry time.Duration
	addVerifyTimeout      time.Duration
	submitRetries         int
}

type Options struct {
	Store                 store.Store
	WorkerID              string
	Seedbox               seedbox.Client
	Uploader              Uploader
	Hooks                 hooks.Hooks
	HTTPClient            *http.Client
	DownloadTimeout       time.Duration
	DownloadRetries       int
	DownloadErrorExpiry   time.Duration
	DownloadTimeoutExpiry time.Duration
	AddVerifyTimeout      time.Duration
	SubmitRetries         int
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		s:                     opts.Store,
		workerID:              opts.WorkerID,
		seedbox:               opts.Seedbox,
		uploader:              opts.Uploader,
		hooks:                 opts.Hooks,
		httpClient:            opts.HTTPClient,
		downloadTimeout:       opts.DownloadTimeout,
		downloadRetries:       opts.DownloadRetries,
		downloadErrorExpiry:   opts.DownloadErrorExpiry,
		downloadTimeoutExpiry: opts.DownloadTimeoutExpiry,
		addVerifyTimeout:      opts.AddVerifyTimeout,
		submitRetries:         opts.SubmitRetries,
	}
}

// RunStartDownloads runs StartDownloadsOnce on interval until ctx is
// cancelled, or until an unrecoverable auth failure (spec §7/§4.10) stops
// it - the scheduled-job half of spec §4.7 (the source schedules
// start_downloads on a 3-minute interval in process/download-only modes).
func (o *Orchestrator) RunStartDownloads(ctx context.Context, interval time.Duration) error {
	return o.loop(ctx, interval, func() error {
		if err := o.StartDownloadsOnce(ctx, interval); err != nil {
			return fmt.Errorf("start_downloads: %w", err)
		}
		return nil
	})
}

// RunCheckDownloads runs CheckDownloadsOnce on interval until ctx is
// cancelled, or until an unrecoverable auth failure stops it.
func (o *Orchestrator) RunCheckDownloads(ctx context.Context, interval time.Duration) error {
	return o.loop(ctx, interval, func() error {
		if err := o.CheckDownloadsOnce(ctx, interval); err != nil {
			return fmt.Errorf("check_downloads: %w", err)
		}
		return nil
	})
}

// loop runs run immediately, then on every tick, until ctx is cancelled.
// Every error is logged; per spec §7, only seedbox.ErrAuth ("an auth
// failure that survives one token refresh") re-raises out of the loop
// instead of being absorbed, so the worker dies and its heartbeat lapses
// for the reaper to clean up.
func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, run func() error) error {
	if err := o.runOnce(run); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.runOnce(run); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) runOnce(run func() error) error {
	err := run()
	if err == nil {
		return nil
	}
	if errors.Is(err, seedbox.ErrAuth) {
		glog.Errorf("orchestrator: unrecoverable auth failure, stopping worker: %v", err)
		return err
	}
	glog.Warningf("orchestrator: %v", err)
	return nil
}

// StartDownloadsOnce runs spec §4.7's loop, bounded by deadline of wall
// time (default DOWNLOAD_START_TIMEOUT).
func (o *Orchestrator) StartDownloadsOnce(ctx context.Context, deadline time.Duration) error {
	stop := time.Now().Add(deadline)
	for {
		if time.Now().After(stop) || ctx.Err() != nil {
			return nil
		}

		d, err := claim.PendingDownload(o.s, o.workerID)
		if err == store.ErrNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: claiming pending download: %w", err)
		}

		a, err := claim.FreeAccount(o.s, o.workerID)
		if err == store.ErrNotFound {
			if uerr := claim.UnlockDownload(o.s, d.ID); uerr != nil {
				glog.Warningf("orchestrator: unlocking download %s after no free accounts: %v", d.ID, uerr)
			}
			glog.V(2).Infof("orchestrator: no free accounts for download %s", d.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: claiming free account: %w", err)
		}

		if err := o.submit(ctx, a, d); err != nil {
			glog.Errorf("orchestrator: failed to add %s to account %s: %v", d.Name, a.ID, err)
			if errors.Is(err, seedbox.ErrAuth) {
				// Not a per-download classification case - the account
				// itself can no longer authenticate. Leave a/d locked for
				// the reaper and kill the worker per spec §7.
				return fmt.Errorf("submitting %s to account %s: %w", d.Name, a.ID, err)
			}
			if o.hooks.OnAddDownloadError(a, d, err) {
				if uerr := claim.UnlockDownload(o.s, d.ID); uerr != nil {
					glog.Warningf("orchestrator: unlocking download %s after submit error: %v", d.ID, uerr)
				}
				a.MarkAsIdle()
				if uerr := o.s.UpdateOne(store.Accounts, a.ID, a); uerr != nil {
					glog.Warningf("orchestrator: idling account %s after submit error: %v", a.ID, uerr)
				}
			} else {
				// The hook already drove a/d to their terminal state in
				// memory; persist both.
				if uerr := o.s.UpdateOne(store.Accounts, a.ID, a); uerr != nil {
					glog.Warningf("orchestrator: persisting account %s after hook-driven terminal state: %v", a.ID, uerr)
				}
				if uerr := o.s.UpdateOne(store.Downloads, d.ID, d); uerr != nil {
					glog.Warningf("orchestrator: persisting download %s after hook-driven terminal state: %v", d.ID, uerr)
				}
			}
		} else {
			glog.Infof("orchestrator: torrent %s added to account %s", d.Name, a.ID)
		}
	}
}

// submit performs spec §4.7 step 3: purge, add, hash, verify, attach.
func (o *Orchestrator) submit(ctx context.Context, a *model.Account, d *model.Download) error {
	if err := o.seedbox.ClearStorage(ctx, a.ID); err != nil {
		return fmt.Errorf("clearing storage: %w", err)
	}

	echoed, err := o.addTorrentWithRetries(ctx, a.ID, d.URL)
	if err != nil {
		return err
	}
	if echoed != d.URL {
		return fmt.Errorf("seedbox echoed %q, expected %q", echoed, d.URL)
	}

	hash, err := seedbox.Hash(ctx, o.httpClient, d.URL)
	if err != nil {
		return fmt.Errorf("computing hash: %w", err)
	}

	if err := o.verify(ctx, a.ID, hash); err != nil {
		return err
	}

	if err := claim.AttachDownload(o.s, a, d, hash); err != nil {
		return fmt.Errorf("attaching download: %w", err)
	}
	return nil
}

func (o *Orchestrator) addTorrentWithRetries(ctx context.Context, accountID, uri string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < o.submitRetries; attempt++ {
		echoed, err := o.seedbox.AddTorrent(ctx, accountID, uri)
		if err == nil {
			return echoed, nil
		}
		lastErr = err
		glog.V(2).Infof("orchestrator: add_torrent attempt %d/%d for account %s: %v", attempt+1, o.submitRetries, accountID, err)
	}
	return "", fmt.Errorf("add_torrent: %w", lastErr)
}

// verify polls the account's torrent list for up to addVerifyTimeout until
// hash appears (spec §4.7 step 3).
func (o *Orchestrator) verify(ctx context.Context, accountID, hash string) error {
	deadline := time.Now().Add(o.addVerifyTimeout)
	for {
		torrents, err := o.seedbox.ListTorrents(ctx, accountID)
		if err != nil {
			return fmt.Errorf("verifying add: %w", err)
		}
		if _, ok := torrents[hash]; ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("verifying add: torrent %s never appeared within %s", hash, o.addVerifyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// CheckDownloadsOnce runs spec §4.8's loop, bounded by deadline of wall
// time (default DOWNLOAD_CHECK_TIMEOUT).
func (o *Orchestrator) CheckDownloadsOnce(ctx context.Context, deadline time.Duration) error {
	stop := time.Now().Add(deadline)
	for {
		if time.Now().After(stop) || ctx.Err() != nil {
			return nil
		}

		a, err := claim.DownloadingAccountToCheck(o.s, o.workerID)
		if err == store.ErrNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: claiming account to check: %w", err)
		}

		if cont, err := o.checkOne(ctx, a); err != nil {
			return fmt.Errorf("orchestrator: checking account %s: %w", a.ID, err)
		} else if !cont {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollBackoff):
		}
	}
}

// checkOne performs spec §4.8 steps 2-5 for one locked account. Every
// branch continues the outer loop rather than breaking it, matching the
// source. The bool reports whether the caller waits pollBackoff before the
// next claim: true only when a still-incomplete download returns the account
// to DOWNLOADING (finishDownload does its own wait when nothing was uploaded).
func (o *Orchestrator) checkOne(ctx context.Context, a *model.Account) (bool, error) {
	var d model.Download
	if err := o.s.Get(store.Downloads, a.DownloadID, &d); err != nil {
		if err != store.ErrNotFound {
			return false, err
		}
		glog.Warningf("orchestrator: account %s downloading but no download found for %s", a.ID, a.DownloadID)
		a.MarkAsIdle()
		return false, o.s.UpdateOne(store.Accounts, a.ID, a)
	}
	if d.Hash == "" {
		glog.Warningf("orchestrator: account %s downloading but download %s has no hash", a.ID, d.ID)
		return false, claim.Reset(o.s, a, &d)
	}

	torrents, err := o.seedbox.ListTorrents(ctx, a.ID)
	if err != nil {
		return false, fmt.Errorf("listing torrents: %w", err)
	}
	t, ok := torrents[d.Hash]
	if !ok {
		glog.Warningf("orchestrator: torrent not found for %s by %s", d.Name, a.ID)
		if o.hooks.OnSonicbitDownloadNotFound(a, &d) {
			return false, claim.Reset(o.s, a, &d)
		}
		return false, nil
	}

	if t.Complete() {
		return false, o.finishDownload(ctx, a, &d, t)
	}

	if a.DownloadTimedOut(o.downloadTimeout) {
		glog.Warningf("orchestrator: download %s timed out on account %s", d.Name, a.ID)
		if err := claim.Timeout(o.s, a, &d, o.downloadTimeoutExpiry); err != nil {
			return false, err
		}
		o.hooks.OnDownloadTimeout(&d)
		return false, nil
	}

	a.Unlock(model.AccountDownloading)
	return true, o.s.UpdateOne(store.Accounts, a.ID, a)
}

// finishDownload performs spec §4.8 step 4: upload, then complete, soft
// retry, or hard failure.
func (o *Orchestrator) finishDownload(ctx context.Context, a *model.Account, d *model.Download, t seedbox.Torrent) error {
	glog.Infof("orchestrator: downloaded %s by %s", d.Name, a.ID)

	a.MarkAsUploading(o.workerID)
	if err := o.s.UpdateOne(store.Accounts, a.ID, a); err != nil {
		return err
	}

	filesUploaded, err := o.uploader.Upload(ctx, a.ID, d, t)
	if err != nil {
		if errors.Is(err, seedbox.ErrAuth) {
			return fmt.Errorf("uploading %s from account %s: %w", d.Name, a.ID, err)
		}
		soft := o.hooks.OnBeforeUploadError(a, d, err)
		if ferr := claim.Fail(o.s, a, d, soft, o.downloadRetries, o.downloadErrorExpiry); ferr != nil {
			return ferr
		}
		o.hooks.OnAfterUploadError(a, d, err)
		return nil
	}

	if filesUploaded > 0 {
		if err := claim.Complete(o.s, a, d.ID); err != nil {
			return err
		}
		o.hooks.OnUploadComplete(a, d, filesUploaded)
		return nil
	}

	glog.Warningf("orchestrator: no files uploaded for %s by %s", d.Name, a.ID)
	a.Unlock(model.AccountDownloading)
	if err := o.s.UpdateOne(store.Accounts, a.ID, a); err != nil {
		return err
	}
	time.Sleep(pollBackoff)
	return nil
}
