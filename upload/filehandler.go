package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/seedboxsh/rssbox/internal/cmn"
	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/seedbox"
)

// FileHandler is the file handler collaborator of spec §6: streams each
// allow-listed file of a finished torrent from the seedbox straight to the
// configured Backend, with no local copy. Generalises the source's file_handler.py, which
// hard-coded a single Deta Drive destination, to any Backend.
type FileHandler struct {
	client           seedbox.Client
	backend          Backend
	stagingDir       string
	filterExtensions map[string]bool
	concurrency      *cmn.DynSemaphore
	progress         *mpb.Progress
}

// NewFileHandler builds a handler; stagingDir is used only by
// StageLocalCopy. filterExtensions is the FILTER_EXTENSIONS allow-list
// (empty means "allow everything"); maxConcurrentFiles bounds how many
// files of a single torrent are uploaded at once.
func NewFileHandler(client seedbox.Client, backend Backend, stagingDir string, filterExtensions []string, maxConcurrentFiles int) *FileHandler {
	allow := make(map[string]bool, len(filterExtensions))
	for _, ext := range filterExtensions {
		allow[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	if maxConcurrentFiles < 1 {
		maxConcurrentFiles = 1
	}
	return &FileHandler{
		client:           client,
		backend:          backend,
		stagingDir:       stagingDir,
		filterExtensions: allow,
		concurrency:      cmn.NewDynSemaphore(maxConcurrentFiles),
		progress:         mpb.New(mpb.WithWidth(40)),
	}
}

// Upload implements spec §6 `upload(download, torrent) -> count`: streams
// every allow-listed file to the backend, uploading concurrently up to the
// handler's bound, and returns how many files were uploaded. Returning 0
// keeps the caller's account in DOWNLOADING (spec §4.8 step 4).
func (h *FileHandler) Upload(ctx context.Context, accountID string, d *model.Download, t seedbox.Torrent) (int, error) {
	var files []seedbox.TorrentFile
	for _, f := range t.Files {
		if h.allowed(f.Extension) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return 0, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		uploaded int
		firstErr error
	)
	multi := len(files) > 1
	for _, f := range files {
		f := f
		name := h.filename(d.Name, f, multi)

		h.concurrency.Acquire()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.concurrency.Release()

			if err := h.processFile(ctx, accountID, f, name); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			uploaded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstErr != nil && uploaded == 0 {
		return 0, firstErr
	}
	if firstErr != nil {
		glog.Warningf("upload: download %s: %d of %d files failed: %v", d.ID, len(files)-uploaded, len(files), firstErr)
	}
	return uploaded, nil
}

func (h *FileHandler) processFile(ctx context.Context, accountID string, f seedbox.TorrentFile, name string) error {
	stream, err := h.client.FetchFile(ctx, accountID, f)
	if err != nil {
		return fmt.Errorf("upload: fetching %s: %w", name, err)
	}
	defer stream.Close()

	bar := h.progress.AddBar(f.Size,
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight})),
		mpb.AppendDecorators(decor.Percentage()),
	)
	reader := bar.ProxyReader(stream)
	defer reader.Close()

	key := name
	if err := h.backend.Put(ctx, key, reader, f.Size); err != nil {
		return fmt.Errorf("upload: uploading %s: %w", name, err)
	}
	return nil
}

func (h *FileHandler) allowed(ext string) bool {
	if len(h.filterExtensions) == 0 {
		return true
	}
	return h.filterExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

var disallowedNameChars = regexp.MustCompile(`\[XC\]|-`)

// filename mirrors file_handler.py's reformat_name/sanitize_name: strip the
// release-group bracket tag, turn hyphens and runs of whitespace into single
// dots, and append the real file extension. When a torrent has more than one
// uploadable file, the per-file name is folded in so files don't collide.
func (h *FileHandler) filename(downloadName string, f seedbox.TorrentFile, multi bool) string {
	base := sanitizeName(downloadName)
	if multi {
		base = base + "." + sanitizeName(f.Name)
	}
	return base + "." + strings.ToLower(strings.TrimPrefix(f.Extension, "."))
}

func sanitizeName(name string) string {
	cleaned := disallowedNameChars.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(cleaned), ".")
}

// StageLocalCopy writes a fetched stream to disk under the handler's
// staging directory and returns the file's path. Upload does not call it;
// every Backend.Put receives the stream directly.
func (h *FileHandler) StageLocalCopy(name string, r io.Reader) (string, error) {
	dir := filepath.Join(h.stagingDir, name)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("upload: staging dir for %s: %w", name, err)
	}
	f, err := os.Create(dir)
	if err != nil {
		return "", fmt.Errorf("upload: staging file for %s: %w", name, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("upload: staging copy for %s: %w", name, err)
	}
	return dir, nil
}
