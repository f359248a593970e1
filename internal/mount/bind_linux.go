//go:build linux

package mount

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BindMounter uses kernel bind mounts. It needs CAP_SYS_ADMIN.
type BindMounter struct{}

// MountReadOnly bind-mounts source onto target and then remounts the bind
// read-only; the kernel ignores MS_RDONLY on the initial bind.
func (BindMounter) MountReadOnly(source, target string, mode os.FileMode) error {
	// Bind mounts take no mode option. Once bound, the root shows the
	// source's own mode; the store commits every object root as DefaultMode.
	if err := os.Chmod(target, mode.Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s on %s: %w", source, target, err)
	}
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV)
	if err := unix.Mount("", target, "", flags, ""); err != nil {
		if derr := unix.Unmount(target, unix.MNT_DETACH); derr != nil {
			err = errors.Join(err, fmt.Errorf("detach after failed remount: %w", derr))
		}
		return fmt.Errorf("remount %s read-only: %w", target, err)
	}
	return nil
}

// Unmount lazily detaches target.
func (BindMounter) Unmount(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}
	return nil
}
