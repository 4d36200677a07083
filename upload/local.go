package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"github.com/golang/glog"
)

// LocalBackend writes uploads under a root directory, keyed by a relative
// path (slashes create subdirectories). Used as the UPLOAD_BACKEND default,
// matching the source's DOWNLOAD_PATH-rooted staging area before the
// original's Deta Drive push.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

var _ Backend = (*LocalBackend)(nil)

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	dest := filepath.Join(b.root, filepath.FromSlash(key))
	if fi, err := os.Stat(dest); err == nil && fi.Size() == size {
		return nil // already present (re-run of a retried upload, spec §9(a))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("upload: local: mkdir for %s: %w", key, err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("upload: local: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("upload: local: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("upload: local: close %s: %w", key, err)
	}
	return os.Rename(tmp, dest)
}

// PruneEmptyDirs walks root and removes any directory left empty by staging
// cleanup, using godirwalk for the same low-allocation directory walk
// idiom the teacher's cloud-backend tooling uses for local mountpath scans.
func PruneEmptyDirs(root string) error {
	var dirs []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() && path != root {
				dirs = append(dirs, path)
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return fmt.Errorf("upload: local: walking %s: %w", root, err)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			if err := os.Remove(dirs[i]); err != nil {
				glog.Warningf("upload: local: failed to prune empty dir %s: %v", dirs[i], err)
			}
		}
	}
	return nil
}
