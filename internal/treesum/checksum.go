package treesum

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/multiformats/go-multihash"
	mhcore "github.com/multiformats/go-multihash/core"
)

// ErrUnsupportedAlgorithm is returned for checksum algorithms VerifyFile
// does not accept.
var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// checksumAlgorithms maps the algorithm prefixes of "algo:hex" checksums
// to multihash codes.
var checksumAlgorithms = map[string]uint64{
	"md5":    multihash.MD5,
	"sha1":   multihash.SHA1,
	"sha256": multihash.SHA2_256,
	"sha384": mhcore.SHA2_384,
	"sha512": multihash.SHA2_512,
}

// VerifyFile reports whether the contents of the file at path match
// checksum, given as "<algorithm>:<hex>" with algorithm one of md5, sha1,
// sha256, sha384 or sha512. A malformed checksum or an unknown algorithm
// is an error; a well-formed checksum that does not match is not.
func VerifyFile(path, checksum string) (bool, error) {
	algorithm, want, ok := strings.Cut(checksum, ":")
	if !ok {
		return false, fmt.Errorf("checksum %q: missing algorithm prefix", checksum)
	}
	code, ok := checksumAlgorithms[algorithm]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	wantSum, err := hex.DecodeString(strings.ToLower(want))
	if err != nil {
		return false, fmt.Errorf("checksum %q: %w", checksum, err)
	}

	h, err := multihash.GetHasher(code)
	if err != nil {
		return false, fmt.Errorf("hasher %s: %w", algorithm, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return subtle.ConstantTimeCompare(h.Sum(nil), wantSum) == 1, nil
}
