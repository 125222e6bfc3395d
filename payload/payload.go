// Package payload converts command values to and from object bodies.
//
// A body is UTF-8 JSON text. Decoding is strict: invalid UTF-8, malformed JSON,
// a JSON type that does not fit the target, or a struct that fails its `validate`
// tags are all rejected rather than leaving a half-filled value behind.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidUTF8 = errors.New("payload: body is not valid UTF-8")
	ErrInvalidJSON = errors.New("payload: body is not valid JSON")
	ErrSchema      = errors.New("payload: body does not match schema")
	ErrTrailing    = errors.New("payload: trailing data after JSON value")
	ErrNull        = errors.New("payload: body is null")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Encode serializes v. A nil v yields an empty body.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: encode %T: %w", v, err)
	}
	return data, nil
}

// Decode parses data into v, which must be a non-nil pointer. Structs are run
// through the validator afterwards, so `validate:"required"` fields must be present.
// A top-level null is only accepted by targets that can hold it (pointers and
// interfaces); anything else would silently keep its zero value.
func Decode(data []byte, v any) error {
	if !utf8.Valid(data) {
		return ErrInvalidUTF8
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) && !nullable(v) {
		return fmt.Errorf("%w: %w into %T", ErrSchema, ErrNull, v)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %q: %v", ErrSchema, typeErr.Field, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	// exactly one value: the next token must be the end of input
	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTrailing, err)
		}
		return fmt.Errorf("%w: %v", ErrTrailing, tok)
	}

	if isStructPtr(v) {
		if err := validatorInstance().Struct(v); err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
	}
	return nil
}

func nullable(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	switch rv.Elem().Kind() {
	case reflect.Pointer, reflect.Interface:
		return true
	default:
		return false
	}
}

func isStructPtr(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
}
