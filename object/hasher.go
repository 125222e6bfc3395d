package object

import (
	"fmt"

	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Hasher is the content-addressing function used for both the body content hash and
// the object id. Implementations must be deterministic and collision resistant; the
// transport uses the resulting id as a routing and dedup key.
type Hasher interface {
	Sum(data []byte) (ID, error)
	Name() string
}

// MultihashHasher hashes through go-multihash with the given function code.
// The digest length must be IDLen.
type MultihashHasher struct {
	Code uint64
}

func (h MultihashHasher) Sum(data []byte) (ID, error) {
	mh, err := multihash.Sum(data, h.Code, IDLen)
	if err != nil {
		return ZeroID, fmt.Errorf("object: multihash sum: %w", err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return ZeroID, fmt.Errorf("object: multihash decode: %w", err)
	}
	return IDFromBytes(decoded.Digest)
}

func (h MultihashHasher) Name() string {
	if name, ok := multihash.Codes[h.Code]; ok {
		return name
	}
	return fmt.Sprintf("multihash-%#x", h.Code)
}

// SHA3Hasher is SHA3-256 straight from x/crypto.
type SHA3Hasher struct{}

func (SHA3Hasher) Sum(data []byte) (ID, error) {
	return ID(sha3.Sum256(data)), nil
}

func (SHA3Hasher) Name() string {
	return "sha3-256"
}

// DefaultHasher is SHA2-256.
var DefaultHasher Hasher = MultihashHasher{Code: multihash.SHA2_256}

// HasherByName maps the names accepted in configuration to hashers.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "sha2-256", "sha256":
		return DefaultHasher, nil
	case "sha3-256", "sha3":
		return SHA3Hasher{}, nil
	default:
		return nil, fmt.Errorf("object: unknown hasher %q", name)
	}
}
