//go:build linux

package mount

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("bind mounts need root")
	}
}

func requireFuse(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("/dev/fuse not available")
	}
	if _, err := exec.LookPath("fusermount3"); err != nil {
		if _, err := exec.LookPath("fusermount"); err != nil {
			t.Skip("fusermount not installed")
		}
	}
}

func sourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Chmod(src, 0700))
	return src
}

// exerciseView checks that the view shows the source read-only and that a
// descriptor opened inside it survives Unmount.
func exerciseView(t *testing.T, m Mounter, checkMode bool) {
	src := sourceTree(t)
	target := t.TempDir()

	if err := m.MountReadOnly(src, target, DefaultMode); err != nil {
		if errors.Is(err, unix.EPERM) {
			t.Skipf("mount not permitted here: %v", err)
		}
		t.Fatalf("MountReadOnly: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(data))

	err = os.WriteFile(filepath.Join(target, "b.txt"), []byte("no"), 0644)
	require.Error(t, err)
	require.True(t, errors.Is(err, unix.EROFS), "got %v", err)

	if checkMode {
		info, err := os.Stat(target)
		require.NoError(t, err)
		require.Equal(t, DefaultMode, info.Mode().Perm())
	}

	held, err := os.Open(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	defer held.Close()

	require.NoError(t, m.Unmount(target))

	buf := make([]byte, 2)
	_, err = held.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf))

	_, err = os.Stat(filepath.Join(target, "a.txt"))
	require.True(t, os.IsNotExist(err), "view still mounted: %v", err)
}

func TestBindMounter(t *testing.T) {
	requireRoot(t)
	exerciseView(t, BindMounter{}, false)
}

func TestFuseMounter(t *testing.T) {
	requireFuse(t)
	exerciseView(t, NewFuseMounter(FuseOptions{}), true)
}

func TestFuseMounter_UnmountUnknown(t *testing.T) {
	m := NewFuseMounter(FuseOptions{})
	require.Error(t, m.Unmount(t.TempDir()))
}

func TestBindMounter_MissingSource(t *testing.T) {
	requireRoot(t)
	err := BindMounter{}.MountReadOnly(filepath.Join(t.TempDir(), "missing"), t.TempDir(), DefaultMode)
	require.Error(t, err)
}

func TestByName(t *testing.T) {
	m, err := ByName("", FuseOptions{})
	require.NoError(t, err)
	require.IsType(t, BindMounter{}, m)

	m, err = ByName(BackendFuse, FuseOptions{})
	require.NoError(t, err)
	require.IsType(t, &FuseMounter{}, m)

	_, err = ByName("nfs", FuseOptions{})
	require.Error(t, err)
}
