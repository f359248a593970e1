// Package store is a content-addressed object store for directory trees.
//
// A store root holds two areas and doubles as scratch space:
//
//	<root>/objects/<hex-digest>/...          committed trees, never modified
//	<root>/refs/<id> -> ../objects/<hex>     caller-named references
//	<root>/tmp-*/                            per-operation working dirs
//
// Writers stage a tree in a working directory, hash it, rename it into
// objects/ and then atomically replace the reference symlink. Readers get a
// read-only mount of the object a reference points at. All cross-process
// safety comes from rename and symlink replacement being atomic within one
// filesystem; the store takes no locks.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/treestore/internal/clone"
	"github.com/systemshift/treestore/internal/mount"
	"github.com/systemshift/treestore/internal/treesum"
)

var (
	// ErrRefNotFound is returned when a reference does not exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrInvalidRef is returned for ids that cannot name a reference.
	ErrInvalidRef = errors.New("invalid reference id")

	// ErrTxnDone is returned when a transaction is used after Commit or Abort.
	ErrTxnDone = errors.New("transaction already finished")

	// ErrHashMismatch is returned when a store was created with a different
	// hash function than the one requested.
	ErrHashMismatch = errors.New("store hash function mismatch")
)

// Copier duplicates the contents of one directory into another.
type Copier interface {
	CopyTree(src, dst string) error
}

// CopierFunc adapts a function to Copier.
type CopierFunc func(src, dst string) error

// CopyTree calls f.
func (f CopierFunc) CopyTree(src, dst string) error { return f(src, dst) }

// Store is a tree store rooted at a directory.
type Store struct {
	root    string
	objects string
	refs    string

	hash    uint64
	mounter mount.Mounter
	copier  Copier
	logger  *zap.Logger
	journal *Journal
}

// Option configures a Store.
type Option func(*Store)

// WithMounter sets the backend used to expose read-only views.
func WithMounter(m mount.Mounter) Option {
	return func(s *Store) { s.mounter = m }
}

// WithCopier sets how base trees are duplicated into a new transaction.
func WithCopier(c Copier) Option {
	return func(s *Store) { s.copier = c }
}

// WithHash sets the multihash function code used for tree digests.
func WithHash(code uint64) Option {
	return func(s *Store) { s.hash = code }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// storeMeta is persisted as <root>/meta.json on first open.
type storeMeta struct {
	V       int       `json:"v"`
	Created time.Time `json:"created"`
	Hash    string    `json:"hash"`
}

// Open opens or creates a store at root. The root, objects/ and refs/
// directories are created if missing; opening an existing store never
// fails because they are already there.
func Open(root string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}

	s := &Store{
		root:    abs,
		objects: filepath.Join(abs, "objects"),
		refs:    filepath.Join(abs, "refs"),
		hash:    treesum.DefaultCode,
		mounter: mount.BindMounter{},
		copier:  clone.Default,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{s.root, s.objects, s.refs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	if err := s.checkMeta(); err != nil {
		return nil, err
	}

	s.journal = NewJournal(filepath.Join(s.root, "journal.jsonl"))
	return s, nil
}

// checkMeta records the hash function of a new store, and refuses to open
// an existing one with a different function: identical trees would land
// under different object names.
func (s *Store) checkMeta() error {
	path := filepath.Join(s.root, "meta.json")
	name := treesum.CodeName(s.hash)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		meta := storeMeta{V: 1, Created: time.Now().UTC(), Hash: name}
		data, _ := json.MarshalIndent(meta, "", "  ")
		if err := SafeWrite(path, data, 0644); err != nil {
			return fmt.Errorf("write store meta: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store meta: %w", err)
	}

	var meta storeMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse store meta: %w", err)
	}
	if meta.Hash != "" && meta.Hash != name {
		return fmt.Errorf("%w: store uses %s, requested %s", ErrHashMismatch, meta.Hash, name)
	}
	return nil
}

// Root returns the absolute store root.
func (s *Store) Root() string { return s.root }

// ObjectsDir returns the objects/ directory.
func (s *Store) ObjectsDir() string { return s.objects }

// RefsDir returns the refs/ directory.
func (s *Store) RefsDir() string { return s.refs }

// Hash returns the multihash code used for digests.
func (s *Store) Hash() uint64 { return s.hash }

// History returns up to n of the most recent reference updates, oldest
// first. n <= 0 returns all of them.
func (s *Store) History(n int) ([]JournalEntry, error) {
	return s.journal.Tail(n)
}

// scratchDir creates a private working directory directly under the root,
// on the same filesystem as objects/ and refs/.
func (s *Store) scratchDir() (string, error) {
	dir, err := os.MkdirTemp(s.root, "tmp-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}
