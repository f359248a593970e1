package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/systemshift/treestore/internal/treesum"
	"golang.org/x/sys/unix"
)

// renameOutcome classifies the result of moving a staged tree into objects/.
type renameOutcome int

const (
	renameOK     renameOutcome = iota
	renameExists               // an object with this digest is already stored
	renameFailed
)

// classifyRename maps a rename error to an outcome. rename(2) reports an
// existing non-empty destination directory as ENOTEMPTY or EEXIST, and
// os.Rename reports any existing destination directory as EEXIST.
func classifyRename(err error) renameOutcome {
	switch {
	case err == nil:
		return renameOK
	case errors.Is(err, unix.ENOTEMPTY), errors.Is(err, unix.EEXIST):
		return renameExists
	default:
		return renameFailed
	}
}

// ObjectPath returns the directory an object with digest d is stored at.
func (s *Store) ObjectPath(d treesum.Digest) string {
	return filepath.Join(s.objects, d.Hex())
}

// HasObject reports whether an object with digest d is stored.
func (s *Store) HasObject(d treesum.Digest) bool {
	_, err := os.Lstat(s.ObjectPath(d))
	return err == nil
}

// publish renames tree into objects/ under d. This is the commit point.
// It reports whether the object already existed.
func (s *Store) publish(tree string, d treesum.Digest) (bool, error) {
	err := os.Rename(tree, s.ObjectPath(d))
	switch classifyRename(err) {
	case renameOK:
		return false, nil
	case renameExists:
		return true, nil
	default:
		return false, fmt.Errorf("store object %s: %w", d.Hex(), err)
	}
}

// Objects returns the digests of all stored objects, sorted by hex name.
// Entries that are not valid digests for the store's hash are skipped.
func (s *Store) Objects() ([]treesum.Digest, error) {
	entries, err := os.ReadDir(s.objects)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	var digests []treesum.Digest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := treesum.ParseHex(s.hash, e.Name())
		if err != nil {
			continue
		}
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		return digests[i].Hex() < digests[j].Hex()
	})
	return digests, nil
}
