// Command rssbox runs one worker process of the distributed work-scheduling
// system described by SPEC_FULL.md: it polls RSS feeds for magnet/torrent
// links, claims and submits them to a pool of seedbox accounts, waits for
// the seedbox to finish downloading, and re-uploads the finished files to a
// pluggable storage backend. Flag/App shape grounded on the teacher's
// cmd/cli entrypoint; the errgroup-of-loops wiring is this command's own,
// since the teacher ships a long-running proxy/target daemon rather than a
// urfave/cli app.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/seedboxsh/rssbox/config"
	"github.com/seedboxsh/rssbox/feed"
	"github.com/seedboxsh/rssbox/heartbeat"
	"github.com/seedboxsh/rssbox/hooks"
	"github.com/seedboxsh/rssbox/internal/cmn"
	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/orchestrator"
	"github.com/seedboxsh/rssbox/reaper"
	"github.com/seedboxsh/rssbox/seedbox"
	"github.com/seedboxsh/rssbox/store"
	"github.com/seedboxsh/rssbox/store/buntstore"
	"github.com/seedboxsh/rssbox/upload"
)

func main() {
	app := cli.NewApp()
	app.Name = "rssbox"
	app.Usage = "claim, download, and re-upload RSS feed torrents through a seedbox account pool"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "rss-only", Usage: "only poll RSS feeds, do not claim or check downloads"},
		cli.BoolFlag{Name: "download-only", Usage: "only run start_downloads, do not poll feeds or check downloads"},
		cli.BoolFlag{Name: "upload-only", Usage: "only run check_downloads (claims, checks, uploads), do not poll feeds or start new downloads"},
		cli.BoolFlag{Name: "process-only", Usage: "run every loop in this one process (default)"},
		cli.StringFlag{Name: "id", Usage: "worker id override; a random id is minted if unset"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		glog.Errorf("rssbox: %v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}

func run(c *cli.Context) error {
	mode, err := modeFromFlags(c)
	if err != nil {
		return err
	}

	cfg, err := config.FromEnv(c.String("id"))
	if err != nil {
		return err
	}
	cfg.Mode = mode
	glog.Infof("rssbox: starting worker %s in mode %s", cfg.WorkerID, cfg.Mode)

	s, err := buntstore.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("rssbox: opening store: %w", err)
	}
	defer s.Close()

	uploadBackend, err := upload.NewBackend(context.Background(), cfg.UploadBackend, upload.BackendConfig{
		LocalDir: cfg.DownloadPath,
	})
	if err != nil {
		return fmt.Errorf("rssbox: building upload backend: %w", err)
	}

	tokens := seedbox.NewStoreTokenHandler(s)
	passwords := func(ctx context.Context, accountID string) (string, error) {
		var a model.Account
		if err := s.Get(store.Accounts, accountID, &a); err != nil {
			return "", fmt.Errorf("looking up account %s: %w", accountID, err)
		}
		return a.Password, nil
	}
	client := seedbox.NewSonicbitClient(seedboxBaseURL(), tokens, passwords)

	fileHandler := upload.NewFileHandler(client, uploadBackend, cfg.DownloadPath, cfg.FilterExtensions, maxConcurrentUploads)

	h := hooks.Default{
		TooLargeExpiry:       cfg.TooLargeRecordExpiry,
		InvalidTorrentExpiry: cfg.InvalidTorrentRecordExpiry,
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:                 s,
		WorkerID:              cfg.WorkerID,
		Seedbox:               client,
		Uploader:              fileHandler,
		Hooks:                 h,
		HTTPClient:            cmn.NewClient(cmn.TransportArgs{}),
		DownloadTimeout:       cfg.DownloadTimeout,
		DownloadRetries:       cfg.DownloadRetries,
		DownloadErrorExpiry:   cfg.DownloadErrorRecordExpiry,
		DownloadTimeoutExpiry: cfg.DownloadTimeoutRecordExpiry,
		AddVerifyTimeout:      cfg.DownloadAddVerifyTimeout,
		SubmitRetries:         cfg.SeedboxSubmitRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Infof("rssbox: signal received, draining worker %s", cfg.WorkerID)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	hb := heartbeat.New(s, cfg.WorkerID, cfg.HeartbeatInterval)
	g.Go(func() error { return hb.Run(ctx) })

	rp := reaper.New(s, cfg.HeartbeatInterval, cfg.ReaperInterval)
	g.Go(func() error { return rp.Run(ctx) })

	if mode == config.ModeProcessOnly || mode == config.ModeRSSOnly {
		if len(cfg.RSSURLs) > 0 {
			poller := feed.New(s, h, cfg.RSSURLs, feedPollInterval)
			g.Go(func() error { return poller.Run(ctx) })
		} else {
			glog.Warningf("rssbox: no RSS_URL configured, feed polling disabled")
		}
	}

	if mode == config.ModeProcessOnly || mode == config.ModeDownloadOnly {
		g.Go(func() error { return orch.RunStartDownloads(ctx, cfg.DownloadStartTimeout) })
	}

	if mode == config.ModeProcessOnly || mode == config.ModeUploadOnly {
		g.Go(func() error { return orch.RunCheckDownloads(ctx, cfg.DownloadCheckTimeout) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("rssbox: worker %s: %w", cfg.WorkerID, err)
	}
	glog.Infof("rssbox: worker %s drained cleanly", cfg.WorkerID)
	return nil
}

func modeFromFlags(c *cli.Context) (config.Mode, error) {
	set := 0
	var mode config.Mode
	for flagName, m := range map[string]config.Mode{
		"rss-only":      config.ModeRSSOnly,
		"download-only": config.ModeDownloadOnly,
		"upload-only":   config.ModeUploadOnly,
		"process-only":  config.ModeProcessOnly,
	} {
		if c.Bool(flagName) {
			set++
			mode = m
		}
	}
	switch set {
	case 0:
		return config.ModeProcessOnly, nil
	case 1:
		return mode, nil
	default:
		return "", fmt.Errorf("rssbox: at most one of --rss-only/--download-only/--upload-only/--process-only may be set")
	}
}

func seedboxBaseURL() string {
	if v := os.Getenv("SONICBIT_BASE_URL"); v != "" {
		return v
	}
	return "https://sonicbit.space/api"
}

const (
	maxConcurrentUploads = 4
	feedPollInterval     = 3 * time.Minute
)

func init() {
	// glog registers its flags on the standard flag set and expects that set
	// to be parsed. Mark it parsed without consuming os.Args, which belong to
	// the urfave/cli app; main flushes glog on both exit paths.
	flag.CommandLine.Parse(nil)
}
