package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/seedboxsh/rssbox/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RSS_URL", "MONGO_URL", "DOWNLOAD_PATH", "FILTER_EXTENSIONS", "UPLOAD_BACKEND",
		"DOWNLOAD_TIMEOUT", "DOWNLOAD_ADD_VERIFY_TIMEOUT", "DOWNLOAD_START_TIMEOUT",
		"DOWNLOAD_CHECK_TIMEOUT", "DOWNLOAD_ERROR_RECORD_EXPIRY", "DOWNLOAD_TIMEOUT_RECORD_EXPIRY",
		"DOWNLOAD_TOO_LARGE_RECORD_EXPIRY", "DOWNLOAD_INVALID_TORRENT_RECORD_EXPIRY",
		"HEARTBEAT_INTERVAL", "REAPER_INTERVAL", "DOWNLOAD_RETRIES",
	} {
		os.Unsetenv(k)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	c, err := config.FromEnv("")
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Mode != config.ModeProcessOnly {
		t.Errorf("Mode = %q, want process-only", c.Mode)
	}
	if c.DownloadTimeout != 150*time.Minute {
		t.Errorf("DownloadTimeout = %v, want 2h30m", c.DownloadTimeout)
	}
	if c.DownloadRetries != 5 {
		t.Errorf("DownloadRetries = %d, want 5", c.DownloadRetries)
	}
	if c.WorkerID == "" {
		t.Error("expected a random worker id to be minted")
	}
}

func TestFromEnvIDOverride(t *testing.T) {
	clearEnv(t)
	c, err := config.FromEnv("worker-xyz")
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.WorkerID != "worker-xyz" {
		t.Errorf("WorkerID = %q, want worker-xyz", c.WorkerID)
	}
}

func TestFromEnvParsesOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("RSS_URL", "http://a.example/rss|http://b.example/rss")
	os.Setenv("FILTER_EXTENSIONS", "mkv, mp4,avi")
	os.Setenv("DOWNLOAD_TIMEOUT", "1h")
	os.Setenv("DOWNLOAD_RETRIES", "3")
	defer clearEnv(t)

	c, err := config.FromEnv("")
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(c.RSSURLs) != 2 || c.RSSURLs[0] != "http://a.example/rss" {
		t.Errorf("RSSURLs = %v, want 2 split entries", c.RSSURLs)
	}
	if len(c.FilterExtensions) != 3 || c.FilterExtensions[1] != "mp4" {
		t.Errorf("FilterExtensions = %v, want [mkv mp4 avi]", c.FilterExtensions)
	}
	if c.DownloadTimeout != time.Hour {
		t.Errorf("DownloadTimeout = %v, want 1h", c.DownloadTimeout)
	}
	if c.DownloadRetries != 3 {
		t.Errorf("DownloadRetries = %d, want 3", c.DownloadRetries)
	}
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	os.Setenv("DOWNLOAD_TIMEOUT", "not-a-duration")
	defer clearEnv(t)

	if _, err := config.FromEnv(""); err == nil {
		t.Error("expected an error for a malformed duration")
	}
}

func TestFromEnvRejectsNegativeRetries(t *testing.T) {
	clearEnv(t)
	os.Setenv("DOWNLOAD_RETRIES", "-1")
	defer clearEnv(t)

	if _, err := config.FromEnv(""); err == nil {
		t.Error("expected an error for negative DOWNLOAD_RETRIES")
	}
}
