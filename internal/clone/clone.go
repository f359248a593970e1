//go:build linux

// Package clone duplicates directory trees, preferring copy-on-write
// reflinks where the filesystem supports them.
package clone

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Copier duplicates a tree the way `cp -a --reflink=auto src/. dst` does.
type Copier struct {
	// NoReflink forces a full data copy even where FICLONE would work.
	NoReflink bool

	// Merge allows dst to already hold entries. Directories present on
	// both sides are merged; any other existing entry is replaced.
	Merge bool
}

// Default is the copier used by CopyTree.
var Default = &Copier{}

// CopyTree copies the contents of src into the existing directory dst
// using Default.
func CopyTree(src, dst string) error {
	return Default.CopyTree(src, dst)
}

type inodeKey struct {
	dev, ino uint64
}

type treeCopy struct {
	reflink bool
	merge   bool
	links   map[inodeKey]string // first destination path per hard-linked inode
}

// CopyTree copies the contents of src (following src itself if it is a
// symlink) into the existing directory dst. Mode, ownership and timestamps
// are preserved on every entry and on dst itself. Ownership is only
// preserved where the caller is allowed to chown.
func (c *Copier) CopyTree(src, dst string) error {
	var st unix.Stat_t
	if err := unix.Stat(src, &st); err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return fmt.Errorf("copy %s: not a directory", src)
	}

	tc := &treeCopy{reflink: !c.NoReflink, merge: c.Merge, links: make(map[inodeKey]string)}
	if err := tc.copyChildren(src, dst); err != nil {
		return err
	}
	return applyAttrs(dst, &st, false)
}

func (tc *treeCopy) copyChildren(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src, err)
	}
	for _, e := range entries {
		if err := tc.copyEntry(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (tc *treeCopy) copyEntry(src, dst string) error {
	var st unix.Stat_t
	if err := unix.Lstat(src, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", src, err)
	}

	existingDir := false
	if tc.merge {
		var err error
		if existingDir, err = tc.clearForMerge(dst, &st); err != nil {
			return err
		}
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		// Owner-writable while children are created; final mode applied after.
		if existingDir {
			if err := os.Chmod(dst, 0700); err != nil {
				return fmt.Errorf("chmod %s: %w", dst, err)
			}
		} else if err := os.Mkdir(dst, 0700); err != nil {
			return fmt.Errorf("mkdir %s: %w", dst, err)
		}
		if err := tc.copyChildren(src, dst); err != nil {
			return err
		}
		return applyAttrs(dst, &st, false)

	case unix.S_IFREG:
		key := inodeKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}
		if uint64(st.Nlink) > 1 {
			if first, ok := tc.links[key]; ok {
				if err := os.Link(first, dst); err != nil {
					return fmt.Errorf("link %s: %w", dst, err)
				}
				return nil
			}
		}
		if err := tc.copyFile(src, dst); err != nil {
			return err
		}
		if uint64(st.Nlink) > 1 {
			tc.links[key] = dst
		}
		return applyAttrs(dst, &st, false)

	case unix.S_IFLNK:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", src, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("symlink %s: %w", dst, err)
		}
		return applyAttrs(dst, &st, true)

	case unix.S_IFIFO:
		if err := unix.Mkfifo(dst, st.Mode&07777); err != nil {
			return fmt.Errorf("mkfifo %s: %w", dst, err)
		}
		return applyAttrs(dst, &st, false)

	case unix.S_IFCHR, unix.S_IFBLK:
		if err := unix.Mknod(dst, st.Mode, int(st.Rdev)); err != nil {
			return fmt.Errorf("mknod %s: %w", dst, err)
		}
		return applyAttrs(dst, &st, false)

	default:
		// Sockets are bound to a live process and are not copied.
		return nil
	}
}

// clearForMerge makes room for src at dst. It reports whether dst is a
// directory to merge into; anything else already at dst is removed.
func (tc *treeCopy) clearForMerge(dst string, src *unix.Stat_t) (bool, error) {
	var st unix.Stat_t
	err := unix.Lstat(dst, &st)
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lstat %s: %w", dst, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR && src.Mode&unix.S_IFMT == unix.S_IFDIR {
		return true, nil
	}
	if err := os.RemoveAll(dst); err != nil {
		return false, fmt.Errorf("replace %s: %w", dst, err)
	}
	return false, nil
}

func (tc *treeCopy) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if tc.reflink {
		err = unix.IoctlFileClone(int(out.Fd()), int(in.Fd()))
		if err == nil {
			return out.Close()
		}
		if !reflinkUnsupported(err) {
			out.Close()
			return fmt.Errorf("reflink %s: %w", dst, err)
		}
		// Only try once per tree; the source and destination filesystems
		// do not change between entries.
		tc.reflink = false
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}

func reflinkUnsupported(err error) bool {
	return errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTTY) ||
		errors.Is(err, unix.ENOSYS)
}

// applyAttrs sets ownership, then mode (chown clears set-id bits), then
// timestamps.
func applyAttrs(path string, st *unix.Stat_t, isLink bool) error {
	if err := unix.Lchown(path, int(st.Uid), int(st.Gid)); err != nil &&
		!errors.Is(err, unix.EPERM) && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if !isLink {
		if err := unix.Chmod(path, st.Mode&07777); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	times := []unix.Timespec{st.Atim, st.Mtim}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("set times %s: %w", path, err)
	}
	return nil
}
