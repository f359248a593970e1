package treesum

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// DefaultCode is the multihash code used when none is configured.
const DefaultCode = multihash.SHA2_256

// Digest is the content hash of a directory tree.
type Digest struct {
	Code uint64 // multihash function code
	Sum  []byte // raw digest bytes
}

// CodeByName maps a multihash function name ("sha2-256", "blake3", ...)
// to its code.
func CodeByName(name string) (uint64, error) {
	code, ok := multihash.Names[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown hash function %q", name)
	}
	if _, err := multihash.GetHasher(code); err != nil {
		return 0, fmt.Errorf("hash function %q: %w", name, err)
	}
	return code, nil
}

// CodeName returns the multihash name for code, or its hex form if unknown.
func CodeName(code uint64) string {
	if name, ok := multihash.Codes[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", code)
}

// ParseHex parses the hex form used for object directory names.
func ParseHex(code uint64, s string) (Digest, error) {
	sum, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("parse digest %q: %w", s, err)
	}
	if len(sum) == 0 {
		return Digest{}, fmt.Errorf("parse digest: empty")
	}
	if want, ok := multihash.DefaultLengths[code]; ok && want > 0 && len(sum) != want {
		return Digest{}, fmt.Errorf("digest %q is %d bytes, want %d for %s", s, len(sum), want, CodeName(code))
	}
	return Digest{Code: code, Sum: sum}, nil
}

// Hex returns the lowercase hex digest. This is the object directory name.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum)
}

// String returns "<hash-name>:<hex>".
func (d Digest) String() string {
	return CodeName(d.Code) + ":" + d.Hex()
}

// IsZero reports whether d holds no digest.
func (d Digest) IsZero() bool {
	return len(d.Sum) == 0
}

// Equal reports whether d and o are the same digest.
func (d Digest) Equal(o Digest) bool {
	return d.Code == o.Code && bytes.Equal(d.Sum, o.Sum)
}

// CID wraps the digest in a CIDv1 with the raw codec.
func (d Digest) CID() (gocid.Cid, error) {
	mh, err := multihash.Encode(d.Sum, d.Code)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// Multibase returns the base32lower encoding of the digest's CID.
func (d Digest) Multibase() (string, error) {
	c, err := d.CID()
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base32, c.Bytes())
}
