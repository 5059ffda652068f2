package codec

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

type sample struct {
	ID    string   `yaml:"id"`
	Count int      `yaml:"count"`
	Tags  []string `yaml:"tags"`
	path  string
}

func TestEncodeUsesFieldOrder(t *testing.T) {
	data, err := Encode(sample{ID: "a1", Count: 2, Tags: []string{"x"}, path: "/tmp/skip"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "id: a1\ncount: 2\ntags:\n") {
		t.Fatalf("expected keys in declaration order, got %q", data)
	}
	if strings.Contains(string(data), "/tmp/skip") {
		t.Fatal("expected unexported path to be omitted")
	}
}

func TestEncodeRejectsNil(t *testing.T) {
	_, err := Encode(nil)
	if !apperrors.HasCode(err, apperrors.CodeEncodeFailed) {
		t.Fatalf("expected ENCODE_FAILED, got %v", err)
	}
}

func TestEncodeRecoversFromPanic(t *testing.T) {
	_, err := Encode(struct{ F func() }{F: func() {}})
	if !apperrors.HasCode(err, apperrors.CodeEncodeFailed) {
		t.Fatalf("expected ENCODE_FAILED, got %v", err)
	}
}

type failingMarshaler struct{}

func (failingMarshaler) MarshalYAML() (any, error) {
	return nil, errors.New("boom")
}

func TestEncodeWrapsMarshalerError(t *testing.T) {
	_, err := Encode(failingMarshaler{})
	if !apperrors.HasCode(err, apperrors.CodeEncodeFailed) {
		t.Fatalf("expected ENCODE_FAILED, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	in := sample{ID: "abc", Count: 7, Tags: []string{"one", "two"}}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode[sample](data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Count != in.Count || len(out.Tags) != 2 || out.Tags[1] != "two" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "whitespace", data: "  \n\t"},
		{name: "unknown key", data: "id: a\nextra: 1\n"},
		{name: "type mismatch", data: "id: a\ncount: many\n"},
		{name: "malformed", data: "id: [a\n"},
		{name: "trailing document", data: "id: a\n---\nid: b\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decode[sample]([]byte(tc.data))
			if !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
				t.Fatalf("expected DECODE_FAILED, got %v", err)
			}
			if out.ID != "" || out.Count != 0 || out.Tags != nil {
				t.Fatalf("expected zero value on failure, got %+v", out)
			}
		})
	}
}

func TestDecodeIntoLeavesDestinationOnFailure(t *testing.T) {
	dst := sample{ID: "keep", Count: 1}
	if err := DecodeInto([]byte("id: new\ncount: nope\n"), &dst); err == nil {
		t.Fatal("expected decode error")
	}
	if dst.ID != "keep" || dst.Count != 1 {
		t.Fatalf("destination changed on failure: %+v", dst)
	}
}

func TestDecodeIntoRequiresPointer(t *testing.T) {
	var dst sample
	if err := DecodeInto([]byte("id: a\n"), dst); !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED for non-pointer, got %v", err)
	}
	var nilPtr *sample
	if err := DecodeInto([]byte("id: a\n"), nilPtr); !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED for nil pointer, got %v", err)
	}
}

func TestDecodeNodeIsStrict(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("id: a\nbogus: true\n"), &node); err != nil {
		t.Fatalf("parse node: %v", err)
	}
	var dst sample
	if err := DecodeNode(&node, &dst); !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED, got %v", err)
	}

	var good yaml.Node
	if err := yaml.Unmarshal([]byte("id: a\ncount: 3\n"), &good); err != nil {
		t.Fatalf("parse node: %v", err)
	}
	if err := DecodeNode(&good, &dst); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	if dst.ID != "a" || dst.Count != 3 {
		t.Fatalf("unexpected decoded node: %+v", dst)
	}
}

func TestDecodeNodeRejectsNil(t *testing.T) {
	var dst sample
	if err := DecodeNode(nil, &dst); !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED, got %v", err)
	}
}
