package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SafeWrite replaces path with data so readers see the old or the new
// contents, never a mix. The data is staged and synced in path's directory.
func SafeWrite(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	staged := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(staged)
		}
	}()

	if err = writeSynced(f, data); err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	if err = f.Chmod(perm); err != nil {
		return fmt.Errorf("stage %s: chmod: %w", filepath.Base(path), err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("stage %s: close: %w", filepath.Base(path), err)
	}
	if err = os.Rename(staged, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// SafeAppend adds data to the end of path, creating it if needed. One
// write on an O_APPEND descriptor is one record for concurrent appenders.
func SafeAppend(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := writeSynced(f, data); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}

func writeSynced(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// ReplaceSymlink atomically points path at target. The new link is built
// as scratch/<name> first; scratch must be on the same filesystem as path.
// Observers see either the old link or the new one, never neither.
func ReplaceSymlink(target, path, scratch string) error {
	tmp := filepath.Join(scratch, "link")
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// removeAll is os.RemoveAll that also clears trees containing directories
// without owner write permission, which a writer may legitimately create.
func removeAll(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	filepath.WalkDir(path, func(p string, d fs.DirEntry, werr error) error {
		if werr == nil && d.IsDir() {
			os.Chmod(p, 0700)
		}
		return nil
	})
	return os.RemoveAll(path)
}
