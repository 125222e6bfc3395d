package client

import (
	"dsg-rpc/object"
	"errors"
	"fmt"
)

// Kind classifies why a call failed.
type Kind int

const (
	KindIdentityResolution Kind = iota + 1
	KindTransport
	KindEncoding
	KindDecoding
	KindPayloadFormat
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrIdentityResolution = errors.New("identity resolution failed")
	ErrTransport          = errors.New("transport error")
	ErrEncoding           = errors.New("encoding error")
	ErrDecoding           = errors.New("decoding error")
	ErrPayloadFormat      = errors.New("payload format error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindIdentityResolution:
		return ErrIdentityResolution
	case KindTransport:
		return ErrTransport
	case KindEncoding:
		return ErrEncoding
	case KindDecoding:
		return ErrDecoding
	case KindPayloadFormat:
		return ErrPayloadFormat
	default:
		return nil
	}
}

// String is the metric/log label of the kind.
func (k Kind) String() string {
	switch k {
	case KindIdentityResolution:
		return "identity_resolution"
	case KindTransport:
		return "transport"
	case KindEncoding:
		return "encoding"
	case KindDecoding:
		return "decoding"
	case KindPayloadFormat:
		return "payload_format"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every failed call. Use errors.Is with the Err* sentinels
// to branch on the kind, or errors.As to read the operation and obj_type.
type Error struct {
	Kind    Kind
	Op      string
	ObjType object.ObjType
	Err     error
}

func (e *Error) Error() string {
	kind := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		kind = s.Error()
	}
	return fmt.Sprintf("dsg: %s obj_type=%d: %s: %v", e.Op, e.ObjType, kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// KindOf returns the kind of a client error, or 0 for any other error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
