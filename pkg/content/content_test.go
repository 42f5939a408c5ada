package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

func TestPackUnpack(t *testing.T) {
	idl := `{"version":"0.1.0","name":"counter","instructions":[]}`

	tests := []struct {
		name        string
		text        string
		encoding    state.Encoding
		compression state.Compression
	}{
		{"utf8", idl, state.EncodingUtf8, state.CompressionNone},
		{"utf8 gzip", idl, state.EncodingUtf8, state.CompressionGzip},
		{"utf8 zstd", strings.Repeat(idl, 50), state.EncodingUtf8, state.CompressionZstd},
		{"hex", "deadbeef", state.EncodingNone, state.CompressionNone},
		{"base58", "3yZe7d", state.EncodingBase58, state.CompressionGzip},
		{"base64", "aGVsbG8gd29ybGQ=", state.EncodingBase64, state.CompressionZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Pack(tt.text, tt.encoding, tt.compression)
			if err != nil {
				t.Fatalf("Failed to pack: %v", err)
			}
			got, err := Unpack(packed, tt.encoding, tt.compression)
			if err != nil {
				t.Fatalf("Failed to unpack: %v", err)
			}
			if got != tt.text {
				t.Errorf("Content mismatch: got %q, want %q", got, tt.text)
			}
		})
	}
}

func TestCompressionShrinksRepetitiveContent(t *testing.T) {
	text := strings.Repeat("program metadata ", 500)
	for _, c := range []state.Compression{state.CompressionGzip, state.CompressionZstd} {
		packed, err := Pack(text, state.EncodingUtf8, c)
		if err != nil {
			t.Fatalf("Failed to pack with %s: %v", c, err)
		}
		if len(packed) >= len(text)/4 {
			t.Errorf("%s output too large: got %d bytes for %d", c, len(packed), len(text))
		}
	}
}

func TestUnpackErrors(t *testing.T) {
	if _, err := Unpack([]byte("not gzip"), state.EncodingUtf8, state.CompressionGzip); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for gzip, got %v", err)
	}
	if _, err := Unpack([]byte("not zstd"), state.EncodingUtf8, state.CompressionZstd); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for zstd, got %v", err)
	}
	if _, err := Unpack([]byte{0xff, 0xfe}, state.EncodingUtf8, state.CompressionNone); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for utf-8, got %v", err)
	}
	if _, err := Pack("zz", state.EncodingNone, state.CompressionNone); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for hex, got %v", err)
	}
	if _, err := Pack("x", state.Encoding(9), state.CompressionNone); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for encoding, got %v", err)
	}
	if _, err := Pack("x", state.EncodingUtf8, state.Compression(9)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for compression, got %v", err)
	}
}

func TestResolveExternal(t *testing.T) {
	target := []byte("0123456789")
	ref := state.ExternalData{Address: types.Pubkey{1}, Offset: 2, Length: 3}

	got, err := ResolveExternal(PackExternal(ref), target)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if string(got) != "234" {
		t.Errorf("Region mismatch: got %q, want %q", got, "234")
	}

	ref.Length = 0
	got, err = ResolveExternal(PackExternal(ref), target)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if string(got) != "23456789" {
		t.Errorf("Region mismatch: got %q, want %q", got, "23456789")
	}

	ref.Offset = 11
	if _, err := ResolveExternal(PackExternal(ref), target); err == nil {
		t.Error("Expected error for offset past the end")
	}
}
