// Package config builds the immutable, process-wide Config value from the
// environment (spec §9 "Global state" - no package-level mutable config
// singleton). Every component takes a *Config explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects which loops a process runs (spec §4.13).
type Mode string

const (
	ModeProcessOnly  Mode = "process-only"
	ModeRSSOnly      Mode = "rss-only"
	ModeDownloadOnly Mode = "download-only"
	ModeUploadOnly   Mode = "upload-only"
)

type Config struct {
	WorkerID string
	Mode     Mode

	RSSURLs []string

	// StorePath backs the buntdb file. Named from MONGO_URL for operator
	// familiarity with the documented external contract (spec §4.14);
	// MONGO_DATABASE is accepted and ignored (buntdb has no database
	// namespace - one file is one store).
	StorePath string

	DownloadPath string

	DownloadTimeout             time.Duration
	DownloadRetries             int
	DownloadAddVerifyTimeout    time.Duration
	DownloadStartTimeout        time.Duration
	DownloadCheckTimeout        time.Duration
	DownloadErrorRecordExpiry   time.Duration
	DownloadTimeoutRecordExpiry time.Duration
	TooLargeRecordExpiry        time.Duration
	InvalidTorrentRecordExpiry  time.Duration

	FilterExtensions []string

	UploadBackend string

	HeartbeatInterval time.Duration
	ReaperInterval    time.Duration

	SeedboxSubmitRetries int
}

// defaults mirror spec §4 exactly (DOWNLOAD_TIMEOUT=2h30m, DOWNLOAD_RETRIES=5, ...).
func defaults() Config {
	return Config{
		Mode:                        ModeProcessOnly,
		StorePath:                   "rssbox.db",
		DownloadPath:                "/downloads",
		DownloadTimeout:             150 * time.Minute,
		DownloadRetries:             5,
		DownloadAddVerifyTimeout:    15 * time.Second,
		DownloadStartTimeout:        2 * time.Minute,
		DownloadCheckTimeout:        8 * time.Minute,
		DownloadErrorRecordExpiry:   7 * 24 * time.Hour,
		DownloadTimeoutRecordExpiry: 7 * 24 * time.Hour,
		TooLargeRecordExpiry:        7 * 24 * time.Hour,
		InvalidTorrentRecordExpiry:  7 * 24 * time.Hour,
		UploadBackend:               "local",
		HeartbeatInterval:           30 * time.Second,
		ReaperInterval:              40 * time.Second,
		SeedboxSubmitRetries:        3,
	}
}

// FromEnv builds a Config from the process environment, applying the
// defaults of spec §4 for anything unset. idOverride, when non-empty,
// implements the CLI's --id flag and wins over a random worker id.
func FromEnv(idOverride string) (*Config, error) {
	c := defaults()

	if v := os.Getenv("RSS_URL"); v != "" {
		c.RSSURLs = splitNonEmpty(v, "|")
	}
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("DOWNLOAD_PATH"); v != "" {
		c.DownloadPath = v
	}
	if v := os.Getenv("FILTER_EXTENSIONS"); v != "" {
		c.FilterExtensions = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("UPLOAD_BACKEND"); v != "" {
		c.UploadBackend = v
	}

	durationFields := []struct {
		env string
		dst *time.Duration
	}{
		{"DOWNLOAD_TIMEOUT", &c.DownloadTimeout},
		{"DOWNLOAD_ADD_VERIFY_TIMEOUT", &c.DownloadAddVerifyTimeout},
		{"DOWNLOAD_START_TIMEOUT", &c.DownloadStartTimeout},
		{"DOWNLOAD_CHECK_TIMEOUT", &c.DownloadCheckTimeout},
		{"DOWNLOAD_ERROR_RECORD_EXPIRY", &c.DownloadErrorRecordExpiry},
		{"DOWNLOAD_TIMEOUT_RECORD_EXPIRY", &c.DownloadTimeoutRecordExpiry},
		{"DOWNLOAD_TOO_LARGE_RECORD_EXPIRY", &c.TooLargeRecordExpiry},
		{"DOWNLOAD_INVALID_TORRENT_RECORD_EXPIRY", &c.InvalidTorrentRecordExpiry},
		{"HEARTBEAT_INTERVAL", &c.HeartbeatInterval},
		{"REAPER_INTERVAL", &c.ReaperInterval},
	}
	for _, f := range durationFields {
		if v := os.Getenv(f.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("config: %s=%q: %w", f.env, v, err)
			}
			*f.dst = d
		}
	}

	if v := os.Getenv("DOWNLOAD_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: DOWNLOAD_RETRIES=%q: %w", v, err)
		}
		c.DownloadRetries = n
	}

	c.WorkerID = idOverride
	if c.WorkerID == "" {
		id, err := newWorkerID()
		if err != nil {
			return nil, err
		}
		c.WorkerID = id
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.DownloadRetries < 0 {
		return fmt.Errorf("config: DOWNLOAD_RETRIES must be >= 0, got %d", c.DownloadRetries)
	}
	if c.HeartbeatInterval <= 0 || c.ReaperInterval <= 0 {
		return fmt.Errorf("config: heartbeat and reaper intervals must be positive")
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
