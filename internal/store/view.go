package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/treestore/internal/mount"
)

// View is a read-only exposure of a committed tree. It must be closed.
type View struct {
	store   *Store
	id      string
	dir     string
	mounted bool
	closed  bool
}

// OpenView mounts the object id points at on a fresh directory under the
// store root. An empty id yields an empty directory and mounts nothing.
//
// The reference is resolved once, here; replacing it while the view is
// open does not change what the view shows.
func (s *Store) OpenView(id string) (*View, error) {
	if id != "" {
		if err := validateRef(id); err != nil {
			return nil, err
		}
	}

	dir, err := s.scratchDir()
	if err != nil {
		return nil, err
	}
	v := &View{store: s, id: id, dir: dir}
	if id == "" {
		return v, nil
	}

	source, err := s.objectDirFor(id)
	if err == nil {
		err = s.mounter.MountReadOnly(source, dir, mount.DefaultMode)
	}
	if err != nil {
		if rerr := removeAll(dir); rerr != nil {
			err = errors.Join(err, fmt.Errorf("remove view dir: %w", rerr))
		}
		return nil, fmt.Errorf("open view %s: %w", id, err)
	}
	v.mounted = true

	s.logger.Debug("view mounted", zap.String("ref", id), zap.String("object", source), zap.String("path", dir))
	return v, nil
}

// Path returns the directory holding the view.
func (v *View) Path() string { return v.dir }

// Close unmounts the view lazily, so descriptors opened inside it stay
// valid, and removes its directory. Calling Close again is a no-op.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	if v.mounted {
		if err := v.store.mounter.Unmount(v.dir); err != nil {
			// The directory may still be a mount point, so it is left in place.
			v.store.logger.Warn("view unmount failed, leaving dir",
				zap.String("ref", v.id), zap.String("path", v.dir), zap.Error(err))
			return fmt.Errorf("close view %s: %w", v.id, err)
		}
		v.store.logger.Debug("view unmounted", zap.String("ref", v.id), zap.String("path", v.dir))
	}
	if err := removeAll(v.dir); err != nil {
		return fmt.Errorf("close view %s: remove dir: %w", v.id, err)
	}
	return nil
}

// Get runs fn with a read-only view of the tree id refers to. The view is
// released however fn returns, including by panic. If fn and the release
// both fail, both errors are reported, fn's first.
func (s *Store) Get(id string, fn func(path string) error) (err error) {
	v, err := s.OpenView(id)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(v.Path())
}
