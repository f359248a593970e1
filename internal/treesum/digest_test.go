package treesum

import (
	"strings"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/stretchr/testify/require"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestParseHex(t *testing.T) {
	d, err := ParseHex(DefaultCode, emptySHA256)
	require.NoError(t, err)
	require.Equal(t, emptySHA256, d.Hex())
	require.Equal(t, "sha2-256:"+emptySHA256, d.String())
	require.False(t, d.IsZero())
}

func TestParseHex_Rejects(t *testing.T) {
	for _, s := range []string{"", "zz", "abcd", emptySHA256 + "00"} {
		_, err := ParseHex(DefaultCode, s)
		require.Error(t, err, "input %q", s)
	}
}

func TestDigest_CID(t *testing.T) {
	d, err := ParseHex(DefaultCode, emptySHA256)
	require.NoError(t, err)

	c, err := d.CID()
	require.NoError(t, err)
	require.Equal(t, uint64(gocid.Raw), c.Type())
	require.Equal(t, uint64(1), c.Version())

	s, err := d.Multibase()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, "b"), "base32lower prefix, got %s", s)

	_, raw, err := multibase.Decode(s)
	require.NoError(t, err)
	back, err := gocid.Cast(raw)
	require.NoError(t, err)
	require.True(t, back.Equals(c))
}

func TestCanonicalJSON_SortedCompact(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"uid": 0, "name": "a", "mode": 33188})
	require.NoError(t, err)
	require.Equal(t, `{"mode":33188,"name":"a","uid":0}`, string(got))
}

func TestCanonicalJSON_LargeIntegersExact(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"size": int64(9007199254740993)})
	require.NoError(t, err)
	require.Equal(t, `{"size":9007199254740993}`, string(got))
}
