package object

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// IDLen is the size of every identifier carried in an object descriptor.
const IDLen = 32

// ID identifies an object, a device or a dec app. Object ids are content-derived
// (see Hasher); device and dec ids are opaque values handed to us by the stack.
type ID [IDLen]byte

// ZeroID is the all-zero id, used as "unset".
var ZeroID ID

// IsZero reports whether id is unset.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// String renders the id in base58, the form device and dec ids are usually exchanged in.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// ParseID parses a base58 string produced by ID.String.
func ParseID(s string) (ID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return ZeroID, fmt.Errorf("object: parse id %q: %w", s, err)
	}
	if len(raw) != IDLen {
		return ZeroID, fmt.Errorf("object: parse id %q: got %d bytes, want %d", s, len(raw), IDLen)
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// MustParseID is ParseID for constants and tests.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IDFromBytes copies b into an ID. b must be exactly IDLen bytes.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != IDLen {
		return ZeroID, fmt.Errorf("object: id needs %d bytes, got %d", IDLen, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// MarshalText renders the id in base58 so it reads naturally in JSON and TOML.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a base58 id.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
