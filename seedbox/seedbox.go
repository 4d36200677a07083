// Package seedbox implements the external seedbox collaborator contract of
// spec §6: submitting torrents/magnets to a remote seedbox account, polling
// their progress, and fetching finished files for upload. Grounded on
// italolelis' TransferOrchestrator/DownloadClient split (claim/poll/fetch)
// and on putdotio/go-putio's client shape (token-based per-account auth,
// add/list/delete/clear verbs).
package seedbox

import "context"

// Torrent is one seedbox-side item, keyed by content hash across the
// collaborator's lifetime (spec §6 "list_torrents() -> map<hex_hash, ...>").
type Torrent struct {
	Hash     string
	Progress int // 0-100
	Files    []TorrentFile
}

// Complete reports whether the torrent has finished downloading on the
// seedbox side and is ready to upload.
func (t Torrent) Complete() bool { return t.Progress >= 100 }

type TorrentFile struct {
	Name        string
	Extension   string
	Size        int64
	DownloadURL string
}

// TokenHandler persists and retrieves a per-account session token, backed
// by the Account document's token field (spec §6: "tokens are persisted on
// the Account document").
type TokenHandler interface {
	Read(ctx context.Context, accountID string) (string, error)
	Write(ctx context.Context, accountID, token string) error
}

// Client is the full seedbox collaborator contract. One Client instance is
// shared across accounts; every call is parameterised by accountID so the
// implementation can look up or refresh that account's credentials/token
// via TokenHandler.
type Client interface {
	// AddTorrent submits uri (a magnet link or an HTTP .torrent URL) to
	// accountID's seedbox session and returns the echoed URI the seedbox
	// confirms it accepted.
	AddTorrent(ctx context.Context, accountID, uri string) (echoedURI string, err error)

	// ListTorrents returns every torrent currently on accountID's
	// session, keyed by hex content hash.
	ListTorrents(ctx context.Context, accountID string) (map[string]Torrent, error)

	// DeleteTorrent removes hash from accountID's session. withFile also
	// deletes the downloaded data on the seedbox.
	DeleteTorrent(ctx context.Context, accountID, hash string, withFile bool) error

	// ClearStorage purges every torrent on accountID's session - the
	// "purge the account's existing torrents" step of spec §4.7 before a
	// fresh submit.
	ClearStorage(ctx context.Context, accountID string) error

	// FetchFile opens a stream for one finished TorrentFile.
	FetchFile(ctx context.Context, accountID string, file TorrentFile) (FileStream, error)
}

// FileStream is a finished file ready to be read and uploaded; callers must
// Close it.
type FileStream interface {
	Read(p []byte) (int, error)
	Close() error
}
