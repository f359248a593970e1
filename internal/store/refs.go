package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/systemshift/treestore/internal/treesum"
)

// Reference ids are caller-chosen strings (typically a hash of build
// configuration). Each one is a single entry in refs/, so it must be a
// valid, non-special path element.
func validateRef(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", ErrInvalidRef)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidRef, id)
	case strings.ContainsAny(id, "/\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidRef, id)
	}
	return nil
}

func (s *Store) refPath(id string) string {
	return filepath.Join(s.refs, id)
}

// refTarget is the relative symlink target stored in refs/ for an object.
func refTarget(d treesum.Digest) string {
	return "../objects/" + d.Hex()
}

// Contains reports whether a reference named id exists. It only checks
// that the link is present; the object behind it is not inspected.
func (s *Store) Contains(id string) bool {
	if validateRef(id) != nil {
		return false
	}
	_, err := os.Lstat(s.refPath(id))
	return err == nil
}

// Resolve returns the digest of the object id currently points at.
func (s *Store) Resolve(id string) (treesum.Digest, error) {
	if err := validateRef(id); err != nil {
		return treesum.Digest{}, err
	}
	target, err := os.Readlink(s.refPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return treesum.Digest{}, fmt.Errorf("%w: %s", ErrRefNotFound, id)
		}
		return treesum.Digest{}, fmt.Errorf("read ref %s: %w", id, err)
	}
	if filepath.Dir(target) != "../objects" {
		return treesum.Digest{}, fmt.Errorf("ref %s: unexpected target %q", id, target)
	}
	return treesum.ParseHex(s.hash, filepath.Base(target))
}

// objectDirFor resolves id to the object directory it points at right now.
// Later reference updates do not affect the returned path.
func (s *Store) objectDirFor(id string) (string, error) {
	if err := validateRef(id); err != nil {
		return "", err
	}
	dir, err := filepath.EvalSymlinks(s.refPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrRefNotFound, id)
		}
		return "", fmt.Errorf("resolve ref %s: %w", id, err)
	}
	return dir, nil
}

// Refs returns all reference ids, sorted.
func (s *Store) Refs() ([]string, error) {
	entries, err := os.ReadDir(s.refs)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
