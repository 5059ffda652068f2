// Package codec converts records to and from their YAML document form.
//
// Decoding is strict and all-or-nothing: unknown keys, mismatched value types,
// empty input and trailing documents are all rejected, and a failed decode
// never hands back a partially populated value.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

// Ext is the file extension used for encoded records.
const Ext = ".yml"

const indent = 2

// Encode renders v as a YAML document.
func Encode(v any) (out []byte, err error) {
	if v == nil {
		return nil, apperrors.New(apperrors.CodeEncodeFailed, "encode record: nil value")
	}
	// yaml.v3 panics on some unsupported values (channels, funcs).
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apperrors.Wrap(apperrors.CodeEncodeFailed, "encode record", fmt.Errorf("%v", r))
		}
	}()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(v); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeFailed, "encode record", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeFailed, "encode record", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data into a new value of type T.
func Decode[T any](data []byte) (T, error) {
	var out T
	if err := DecodeInto(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DecodeInto parses data into dst, which must be a non-nil pointer. dst is
// only written when the whole document decodes successfully.
func DecodeInto(data []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return apperrors.New(apperrors.CodeDecodeFailed, "decode record: destination must be a non-nil pointer")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return apperrors.New(apperrors.CodeDecodeFailed, "decode record: empty document")
	}

	scratch := reflect.New(rv.Elem().Type())
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(scratch.Interface()); err != nil {
		return apperrors.Wrap(apperrors.CodeDecodeFailed, "decode record", err)
	}
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing document")
		}
		return apperrors.Wrap(apperrors.CodeDecodeFailed, "decode record", err)
	}

	rv.Elem().Set(scratch.Elem())
	return nil
}

// DecodeNode strictly decodes an already parsed node into dst. Types that
// implement yaml.Unmarshaler through a private document struct use it so
// unknown keys are still rejected.
func DecodeNode(node *yaml.Node, dst any) error {
	if node == nil {
		return apperrors.New(apperrors.CodeDecodeFailed, "decode record: nil node")
	}
	// Node.Decode has no KnownFields switch, so re-encode and go through a
	// strict decoder instead.
	raw, err := yaml.Marshal(node)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDecodeFailed, "decode record", err)
	}
	return DecodeInto(raw, dst)
}
