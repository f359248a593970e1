//go:build linux

package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// FuseOptions configures FuseMounter.
type FuseOptions struct {
	// AllowOther lets other users read the view. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request.
	Debug bool
}

// FuseMounter serves views through a read-only go-fuse loopback. Unlike
// BindMounter it works without CAP_SYS_ADMIN where fusermount is installed.
type FuseMounter struct {
	opts FuseOptions

	mu      sync.Mutex
	servers map[string]*gofuse.Server // keyed by mount target
}

// NewFuseMounter creates a FuseMounter.
func NewFuseMounter(opts FuseOptions) *FuseMounter {
	return &FuseMounter{opts: opts, servers: make(map[string]*gofuse.Server)}
}

// viewRoot is the loopback root of a view. It reports a fixed permission
// mode regardless of the stored object's mode.
type viewRoot struct {
	fs.LoopbackNode
	mode uint32
}

var _ = (fs.NodeGetattrer)((*viewRoot)(nil))

func (r *viewRoot) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	if errno := r.LoopbackNode.Getattr(ctx, fh, out); errno != fs.OK {
		return errno
	}
	out.Mode = (out.Mode &^ 07777) | r.mode
	return fs.OK
}

// MountReadOnly serves source at target with the "ro" mount option, so
// writes fail with EROFS in the kernel before reaching the loopback.
func (m *FuseMounter) MountReadOnly(source, target string, mode os.FileMode) error {
	var st syscall.Stat_t
	if err := syscall.Stat(source, &st); err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	data := &fs.LoopbackRoot{Path: source, Dev: uint64(st.Dev)}
	root := &viewRoot{
		LoopbackNode: fs.LoopbackNode{RootData: data},
		mode:         uint32(mode.Perm()),
	}
	data.RootNode = root

	timeout := time.Second
	server, err := fs.Mount(target, root, &fs.Options{
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
		MountOptions: gofuse.MountOptions{
			FsName:     "treestore",
			Name:       "treestore",
			Options:    []string{"ro"},
			AllowOther: m.opts.AllowOther,
			Debug:      m.opts.Debug,
		},
	})
	if err != nil {
		return fmt.Errorf("fuse mount %s on %s: %w", source, target, err)
	}

	m.mu.Lock()
	m.servers[target] = server
	m.mu.Unlock()
	return nil
}

// Unmount stops the server for target. If the mount is busy it is
// detached lazily instead; the server exits once the kernel lets go.
func (m *FuseMounter) Unmount(target string) error {
	m.mu.Lock()
	server, ok := m.servers[target]
	delete(m.servers, target)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unmount %s: not mounted by this process", target)
	}

	err := server.Unmount()
	if err == nil {
		return nil
	}
	if derr := detach(target); derr != nil {
		return fmt.Errorf("unmount %s: %w", target, errors.Join(err, derr))
	}
	return nil
}

// detach lazily unmounts target, through fusermount when the process lacks
// the privilege to call umount2 itself.
func detach(target string) error {
	err := unix.Unmount(target, unix.MNT_DETACH)
	if err == nil || !errors.Is(err, unix.EPERM) {
		return err
	}
	for _, bin := range []string{"fusermount3", "fusermount"} {
		path, lerr := exec.LookPath(bin)
		if lerr != nil {
			continue
		}
		out, cerr := exec.Command(path, "-u", "-z", target).CombinedOutput()
		if cerr != nil {
			return fmt.Errorf("%s -u -z: %w: %s", bin, cerr, strings.TrimSpace(string(out)))
		}
		return nil
	}
	return err
}
