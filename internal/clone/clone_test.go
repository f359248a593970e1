//go:build linux

package clone

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func buildTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "run.sh"), []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.Chmod(filepath.Join(src, "sub", "run.sh"), 0750))
	require.NoError(t, os.Symlink("../a.txt", filepath.Join(src, "sub", "link")))
	require.NoError(t, os.Link(filepath.Join(src, "a.txt"), filepath.Join(src, "hard.txt")))
	require.NoError(t, unix.Mkfifo(filepath.Join(src, "pipe"), 0640))
	return src
}

func TestCopyTree_ContentsAndAttrs(t *testing.T) {
	src := buildTree(t)
	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), stamp, stamp))

	for _, c := range []*Copier{{}, {NoReflink: true}} {
		dst := t.TempDir()
		require.NoError(t, c.CopyTree(src, dst))

		data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
		require.NoError(t, err)
		require.Equal(t, "hi", string(data))

		info, err := os.Stat(filepath.Join(dst, "sub", "run.sh"))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0750), info.Mode().Perm())

		target, err := os.Readlink(filepath.Join(dst, "sub", "link"))
		require.NoError(t, err)
		require.Equal(t, "../a.txt", target)

		info, err = os.Stat(filepath.Join(dst, "a.txt"))
		require.NoError(t, err)
		require.True(t, info.ModTime().Equal(stamp), "mtime %v", info.ModTime())

		hard, err := os.Stat(filepath.Join(dst, "hard.txt"))
		require.NoError(t, err)
		require.True(t, os.SameFile(info, hard), "hard link not preserved")

		pipe, err := os.Lstat(filepath.Join(dst, "pipe"))
		require.NoError(t, err)
		require.Equal(t, os.ModeNamedPipe, pipe.Mode().Type())
	}
}

func TestCopyTree_DestinationIsIndependent(t *testing.T) {
	src := buildTree(t)
	dst := t.TempDir()
	require.NoError(t, CopyTree(src, dst))

	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("changed"), 0644))
	require.NoError(t, os.Remove(filepath.Join(dst, "sub", "run.sh")))

	data, err := os.ReadFile(filepath.Join(src, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(data))
	_, err = os.Stat(filepath.Join(src, "sub", "run.sh"))
	require.NoError(t, err)
}

func TestCopyTree_ReadOnlyDirectories(t *testing.T) {
	src := t.TempDir()
	ro := filepath.Join(src, "ro")
	require.NoError(t, os.Mkdir(ro, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ro, "f"), []byte("x"), 0444))
	require.NoError(t, os.Chmod(ro, 0555))
	t.Cleanup(func() { os.Chmod(ro, 0755) })

	dst := t.TempDir()
	require.NoError(t, CopyTree(src, dst))
	t.Cleanup(func() { os.Chmod(filepath.Join(dst, "ro"), 0755) })

	info, err := os.Stat(filepath.Join(dst, "ro"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0555), info.Mode().Perm())
	data, err := os.ReadFile(filepath.Join(dst, "ro", "f"))
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}

func TestCopyTree_FollowsSourceSymlink(t *testing.T) {
	src := buildTree(t)
	link := filepath.Join(t.TempDir(), "ref")
	require.NoError(t, os.Symlink(src, link))

	dst := t.TempDir()
	require.NoError(t, CopyTree(link, dst))
	_, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
}

func TestCopyTree_MissingSource(t *testing.T) {
	err := CopyTree(filepath.Join(t.TempDir(), "nope"), t.TempDir())
	require.Error(t, err)
}

func TestCopyTree_Merge(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("new"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "added"), []byte("+"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "was-dir"), []byte("file now"), 0644))

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("old"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dst, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "sub", "kept"), []byte("k"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "was-dir", "deep"), 0755))

	require.Error(t, CopyTree(src, dst), "plain copy must refuse existing entries")

	require.NoError(t, (&Copier{Merge: true}).CopyTree(src, dst))

	for path, want := range map[string]string{
		"a.txt":     "new",
		"sub/added": "+",
		"sub/kept":  "k",
		"was-dir":   "file now",
	} {
		data, err := os.ReadFile(filepath.Join(dst, path))
		require.NoError(t, err, path)
		require.Equal(t, want, string(data), path)
	}
}
