package treesum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var checkContent = []byte("Checksum\nThis file\nConsistently.")

var checkSums = map[string]string{
	"md5":    "37eda131b189bede2816cc72dabf0252",
	"sha1":   "6017eb45d9a006906ff81b7eb7d98ecdc92e1b20",
	"sha256": "e72fa48e1718534259f05303de0b28184718d229675ffa6314bb481991a90faa",
	"sha384": "35e3dcc878856d7f0bd12eb46781081682dd5a9da2af749dcfb3ff5d12c8fa323cd34a3d55c24b6d7cba4ae9a7203fb4",
	"sha512": "5d362859cea5393e3655eb93c743580cf6b466afaec8016bcd3fbaae07253e524135859292dce967d9d13bd5e3c24f1d095a9f5a3f4bc9ea923325d4fd688c64",
}

func checkFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "check")
	require.NoError(t, os.WriteFile(path, checkContent, 0644))
	return path
}

func TestVerifyFile(t *testing.T) {
	path := checkFile(t)
	for algorithm, sum := range checkSums {
		ok, err := VerifyFile(path, algorithm+":"+sum)
		require.NoError(t, err, algorithm)
		require.True(t, ok, algorithm)
	}
}

func TestVerifyFile_Mismatch(t *testing.T) {
	path := checkFile(t)
	ok, err := VerifyFile(path, "sha256:"+emptySHA256)
	require.NoError(t, err)
	require.False(t, ok)

	// A truncated digest never matches.
	ok, err = VerifyFile(path, "sha256:"+checkSums["sha256"][:32])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyFile_Errors(t *testing.T) {
	path := checkFile(t)

	_, err := VerifyFile(path, "crc32:deadbeef")
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = VerifyFile(path, checkSums["sha256"])
	require.Error(t, err)

	_, err = VerifyFile(path, "sha256:not-hex")
	require.Error(t, err)

	_, err = VerifyFile(filepath.Join(t.TempDir(), "absent"), "sha256:"+checkSums["sha256"])
	require.ErrorIs(t, err, os.ErrNotExist)
}
