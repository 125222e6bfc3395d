package object

import (
	"errors"
	"fmt"
)

// ErrEncoding and ErrDecoding classify every failure returned by Codec; the specific
// cause below is wrapped alongside so callers can match either.
var (
	ErrEncoding = errors.New("object: encoding failed")
	ErrDecoding = errors.New("object: decoding failed")
)

var (
	ErrObjTypeRange      = errors.New("object: obj_type out of range")
	ErrBodyTooLarge      = errors.New("object: body too large")
	ErrSizeMismatch      = errors.New("object: measured and encoded size differ")
	ErrShortBuffer       = errors.New("object: buffer smaller than measured size")
	ErrInvalidMagic      = errors.New("object: invalid magic")
	ErrUnsupportedVer    = errors.New("object: unsupported version")
	ErrUnknownObjectCode = errors.New("object: unknown object code")
	ErrTruncated         = errors.New("object: truncated data")
	ErrLengthMismatch    = errors.New("object: declared length does not match buffer")
	ErrBodyHashMismatch  = errors.New("object: body does not match content hash")
)

func encodeErr(cause error) error {
	return fmt.Errorf("%w: %w", ErrEncoding, cause)
}

func decodeErr(cause error) error {
	return fmt.Errorf("%w: %w", ErrDecoding, cause)
}
