package seedbox

import (
	"context"
	"crypto/sha1" //nolint:gosec // info-hash is defined as SHA-1 by the BitTorrent spec, not a security use
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/bencode"
)

var btihPattern = regexp.MustCompile(`(?i)urn:btih:([a-z0-9]{32,40})`)

// torrentInfo is the subset of a .torrent file's structure needed to
// re-encode just the info dictionary for hashing; unknown keys round-trip
// through bencode.Dict's RawMessage fields so the hash is computed over
// exactly the bytes the seedbox itself hashes.
type torrentInfo struct {
	Info bencode.RawMessage `bencode:"info"`
}

// Hash computes the BitTorrent info-hash for uri (spec §4.7/§6 "Hash
// computation"): magnet links carry the hash in their btih parameter;
// .torrent URLs must be fetched and the info dictionary SHA-1'd. Returned
// as uppercase hex, matching the spec's comparison against seedbox torrent
// listings.
func Hash(ctx context.Context, httpClient *http.Client, uri string) (string, error) {
	if strings.HasPrefix(strings.ToLower(uri), "magnet:") {
		return hashMagnet(uri)
	}
	return hashTorrentURL(ctx, httpClient, uri)
}

func hashMagnet(uri string) (string, error) {
	m := btihPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", fmt.Errorf("seedbox: %w: no btih parameter in %q", ErrHashCalculation, uri)
	}
	return strings.ToUpper(m[1]), nil
}

func hashTorrentURL(ctx context.Context, httpClient *http.Client, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("seedbox: %w: building request for %q: %v", ErrHashCalculation, uri, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("seedbox: %w: fetching %q: %v", ErrHashCalculation, uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("seedbox: %w: %q returned status %d", ErrHashCalculation, uri, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("seedbox: %w: reading %q: %v", ErrHashCalculation, uri, err)
	}

	var t torrentInfo
	if err := bencode.Unmarshal(body, &t); err != nil {
		return "", fmt.Errorf("seedbox: %w: bdecoding %q: %v", ErrHashCalculation, uri, err)
	}
	if len(t.Info) == 0 {
		return "", fmt.Errorf("seedbox: %w: %q has no info dictionary", ErrHashCalculation, uri)
	}

	sum := sha1.Sum(t.Info) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}
