package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/treestore/internal/mount"
	"github.com/systemshift/treestore/internal/treesum"
)

// Txn stages a new tree for a reference. Exactly one of Commit or Abort
// finishes it; both release the working directory.
type Txn struct {
	store *Store
	id    string
	base  string
	dir   string // private working directory under the store root
	tree  string // dir/tree, handed to the caller
	done  bool
}

// Begin starts a transaction that will commit under id. If baseID is not
// empty, the tree it currently refers to is copied into the working tree
// before Begin returns, using reflinks where the filesystem allows.
func (s *Store) Begin(id, baseID string) (*Txn, error) {
	if err := validateRef(id); err != nil {
		return nil, err
	}
	if baseID != "" {
		if err := validateRef(baseID); err != nil {
			return nil, err
		}
	}

	dir, err := s.scratchDir()
	if err != nil {
		return nil, err
	}
	t := &Txn{store: s, id: id, base: baseID, dir: dir, tree: filepath.Join(dir, "tree")}

	if err := t.prepare(); err != nil {
		if rerr := removeAll(dir); rerr != nil {
			err = errors.Join(err, fmt.Errorf("remove working dir: %w", rerr))
		}
		return nil, err
	}
	return t, nil
}

func (t *Txn) prepare() error {
	if err := os.Mkdir(t.tree, mount.DefaultMode); err != nil {
		return fmt.Errorf("create working tree: %w", err)
	}
	// Mkdir is subject to umask.
	if err := os.Chmod(t.tree, mount.DefaultMode); err != nil {
		return fmt.Errorf("chmod working tree: %w", err)
	}
	if t.base == "" {
		return nil
	}

	source, err := t.store.objectDirFor(t.base)
	if err != nil {
		return fmt.Errorf("base %s: %w", t.base, err)
	}
	if err := t.store.copier.CopyTree(source, t.tree); err != nil {
		return fmt.Errorf("copy base %s: %w", t.base, err)
	}
	t.store.logger.Debug("base copied", zap.String("ref", t.id), zap.String("base", t.base))
	return nil
}

// Path returns the working tree to populate.
func (t *Txn) Path() string { return t.tree }

// Commit hashes the working tree, stores it as an object and points the
// reference at it. If an identical object is already stored it is reused.
// On error the reference is left as it was.
func (t *Txn) Commit() (d treesum.Digest, err error) {
	if t.done {
		return treesum.Digest{}, ErrTxnDone
	}
	t.done = true
	defer func() {
		if rerr := removeAll(t.dir); rerr != nil {
			err = errors.Join(err, fmt.Errorf("remove working dir: %w", rerr))
		}
	}()

	s := t.store
	// Every object root reads as DefaultMode, whatever fn left behind.
	if err := os.Chmod(t.tree, mount.DefaultMode); err != nil {
		return treesum.Digest{}, fmt.Errorf("chmod tree for %s: %w", t.id, err)
	}
	d, err = treesum.Sum(t.tree, s.hash)
	if err != nil {
		return treesum.Digest{}, fmt.Errorf("hash tree for %s: %w", t.id, err)
	}

	existed, err := s.publish(t.tree, d)
	if err != nil {
		return treesum.Digest{}, err
	}
	if existed {
		s.logger.Debug("object already stored", zap.String("ref", t.id), zap.String("digest", d.String()))
	}

	prev, perr := s.Resolve(t.id)
	if perr != nil && !errors.Is(perr, ErrRefNotFound) {
		s.logger.Debug("previous ref unreadable", zap.String("ref", t.id), zap.Error(perr))
	}
	if err := ReplaceSymlink(refTarget(d), s.refPath(t.id), t.dir); err != nil {
		return treesum.Digest{}, fmt.Errorf("set ref %s: %w", t.id, err)
	}
	s.logger.Debug("committed", zap.String("ref", t.id), zap.String("digest", d.String()))

	entry := JournalEntry{Timestamp: time.Now().UTC(), Ref: t.id, Digest: d.String()}
	if !prev.IsZero() {
		entry.Prev = prev.String()
	}
	if jerr := s.journal.Append(entry); jerr != nil {
		s.logger.Warn("journal append failed", zap.String("ref", t.id), zap.Error(jerr))
	}
	return d, nil
}

// Abort discards the working tree. Nothing is committed.
func (t *Txn) Abort() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if err := removeAll(t.dir); err != nil {
		return fmt.Errorf("abort %s: %w", t.id, err)
	}
	return nil
}

// New runs fn on the working tree of a new transaction and commits the
// result under id only if fn returns nil. If fn fails or panics the
// working tree is discarded and the reference is untouched.
func (s *Store) New(id, baseID string, fn func(tree string) error) (d treesum.Digest, err error) {
	t, err := s.Begin(id, baseID)
	if err != nil {
		return treesum.Digest{}, err
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		if aerr := t.Abort(); aerr != nil {
			err = errors.Join(err, aerr)
		}
	}()

	if err := fn(t.Path()); err != nil {
		return treesum.Digest{}, err
	}
	finished = true
	return t.Commit()
}
