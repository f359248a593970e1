// Package treesum computes a deterministic content digest over a
// directory tree.
//
// Entries are visited in byte-sorted name order. Each entry contributes a
// canonical JSON header (name, mode, uid, gid, plus size for regular files
// and rdev for device nodes) followed by its payload: file contents, the
// recursive digest stream of a directory, or a symlink's target. Timestamps,
// inode numbers and the absolute location of the tree do not contribute.
package treesum

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"sort"

	"github.com/multiformats/go-multihash"
	"golang.org/x/sys/unix"
)

// ErrUnsupportedType is returned for entries that cannot be hashed (sockets).
var ErrUnsupportedType = errors.New("unsupported file type")

// lostFound is skipped at every level; mkfs may create it on any mount.
const lostFound = "lost+found"

// Sum opens the directory at dir and computes its digest.
func Sum(dir string, code uint64) (Digest, error) {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", dir, err)
	}
	defer unix.Close(fd)
	return SumDir(fd, code)
}

// SumDir computes the digest of the tree below the open directory dirfd.
// dirfd is not closed and its file offset is not touched.
func SumDir(dirfd int, code uint64) (Digest, error) {
	h, err := multihash.GetHasher(code)
	if err != nil {
		return Digest{}, fmt.Errorf("hasher: %w", err)
	}
	if err := walk(h, dirfd, "."); err != nil {
		return Digest{}, err
	}
	return Digest{Code: code, Sum: h.Sum(nil)}, nil
}

func walk(h hash.Hash, dirfd int, rel string) error {
	names, err := readNames(dirfd)
	if err != nil {
		return fmt.Errorf("list %s: %w", rel, err)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := path.Join(rel, name)

		var st unix.Stat_t
		if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("stat %s: %w", entry, err)
		}
		typ := st.Mode & unix.S_IFMT
		if name == lostFound && typ == unix.S_IFDIR {
			continue
		}

		header := map[string]interface{}{
			"name": name,
			"mode": st.Mode,
			"uid":  st.Uid,
			"gid":  st.Gid,
		}
		switch typ {
		case unix.S_IFREG:
			header["size"] = st.Size
		case unix.S_IFCHR, unix.S_IFBLK:
			header["rdev"] = uint64(st.Rdev)
		case unix.S_IFDIR, unix.S_IFLNK, unix.S_IFIFO:
		default:
			return fmt.Errorf("%s: %w (mode %o)", entry, ErrUnsupportedType, st.Mode)
		}
		data, err := CanonicalJSON(header)
		if err != nil {
			return fmt.Errorf("encode header %s: %w", entry, err)
		}
		h.Write(data)

		switch typ {
		case unix.S_IFDIR:
			fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
			if err != nil {
				return fmt.Errorf("open %s: %w", entry, err)
			}
			err = walk(h, fd, entry)
			unix.Close(fd)
			if err != nil {
				return err
			}
		case unix.S_IFREG:
			if err := hashFile(h, dirfd, name, entry); err != nil {
				return err
			}
		case unix.S_IFLNK:
			target, err := readlinkat(dirfd, name)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", entry, err)
			}
			h.Write([]byte(target))
		}
	}
	return nil
}

func hashFile(h hash.Hash, dirfd int, name, entry string) error {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", entry, err)
	}
	f := os.NewFile(uintptr(fd), entry)
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("read %s: %w", entry, err)
	}
	return nil
}

// readNames lists dirfd through a fresh open file description so the
// caller's descriptor offset is left alone.
func readNames(dirfd int) ([]string, error) {
	fd, err := unix.Openat(dirfd, ".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), ".")
	defer f.Close()
	return f.Readdirnames(-1)
}

func readlinkat(dirfd int, name string) (string, error) {
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(dirfd, name, buf)
		if err != nil {
			return "", err
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}
