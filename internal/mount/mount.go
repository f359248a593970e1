// Package mount exposes a directory read-only at another path.
package mount

import (
	"fmt"
	"os"
)

// DefaultMode is the permission mode reported for the root of a view.
const DefaultMode os.FileMode = 0755

// Mounter binds directories read-only and detaches them again.
type Mounter interface {
	// MountReadOnly exposes source at target, which must be an existing
	// empty directory. The root of the view reports mode.
	MountReadOnly(source, target string, mode os.FileMode) error

	// Unmount detaches target lazily: descriptors already opened below
	// it stay valid.
	Unmount(target string) error
}

// Backend names accepted by ByName.
const (
	BackendBind = "bind"
	BackendFuse = "fuse"
)

// ByName returns the mounter for a configured backend name.
func ByName(name string, opts FuseOptions) (Mounter, error) {
	switch name {
	case "", BackendBind:
		return BindMounter{}, nil
	case BackendFuse:
		return NewFuseMounter(opts), nil
	default:
		return nil, fmt.Errorf("unknown mount backend %q", name)
	}
}
