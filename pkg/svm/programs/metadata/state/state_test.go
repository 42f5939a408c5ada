package state

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

func TestDecodeEmpty(t *testing.T) {
	for _, data := range [][]byte{nil, make([]byte, HeaderLen)} {
		acc, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if _, ok := acc.(Empty); !ok {
			t.Errorf("Expected Empty, got %T", acc)
		}
	}

	if _, err := Decode([]byte{9}); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData for unknown discriminator, got %v", err)
	}
}

func TestBufferLayout(t *testing.T) {
	program := types.Pubkey{1}
	authority := types.Pubkey{2}
	seed, _ := ParseSeed("idl")

	data := make([]byte, HeaderLen+3)
	copy(data[HeaderLen:], "abc")
	b := &Buffer{Program: &program, Authority: &authority, Canonical: true, Seed: seed}
	if err := b.Encode(data); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if data[0] != 1 || data[1] != 1 || data[33] != 2 || data[65] != 1 || data[66] != 'i' {
		t.Errorf("Unexpected header bytes: %v", data[:70])
	}

	acc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := acc.(*Buffer)
	if !ok {
		t.Fatalf("Expected *Buffer, got %T", acc)
	}
	if !got.IsPDA() || *got.Program != program || *got.Authority != authority || !got.Canonical || got.Seed != seed {
		t.Errorf("Buffer mismatch: got %+v", got)
	}
	if !bytes.Equal(BufferPayload(data), []byte("abc")) {
		t.Errorf("Payload mismatch: got %q", BufferPayload(data))
	}
}

func TestKeypairBufferHasNoProgram(t *testing.T) {
	self := types.Pubkey{5}
	data := make([]byte, HeaderLen)
	if err := (&Buffer{Authority: &self}).Encode(data); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := DecodeBuffer(data)
	if err != nil {
		t.Fatalf("DecodeBuffer failed: %v", err)
	}
	if b.IsPDA() || b.Program != nil {
		t.Error("Keypair buffer should not carry a program")
	}
}

func TestMetadataLayout(t *testing.T) {
	seed, _ := ParseSeed("idl")
	m := &Metadata{
		Program:     types.Pubkey{1},
		Mutable:     true,
		Canonical:   true,
		Seed:        seed,
		Encoding:    EncodingUtf8,
		Compression: CompressionZstd,
		Format:      FormatJson,
		DataSource:  DataSourceDirect,
		DataLength:  2,
	}
	data := make([]byte, HeaderLen+4)
	copy(data[HeaderLen:], "{}xx")
	if err := m.Encode(data); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if data[0] != 2 || data[65] != 1 || data[66] != 1 || data[67] != 'i' {
		t.Errorf("Unexpected header bytes: %v", data[:70])
	}
	if data[83] != 1 || data[84] != 2 || data[85] != 1 || data[86] != 0 || data[87] != 2 {
		t.Errorf("Unexpected enum bytes: %v", data[83:91])
	}

	got, err := DecodeMetadata(data)
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if *got != *m {
		t.Errorf("Metadata mismatch: got %+v, want %+v", got, m)
	}
	if string(got.Payload(data)) != "{}" {
		t.Errorf("Payload mismatch: got %q", got.Payload(data))
	}
}

func TestMetadataValidation(t *testing.T) {
	data := make([]byte, HeaderLen)

	thirdParty := &Metadata{Program: types.Pubkey{1}}
	if err := thirdParty.Encode(data); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData for third-party record without authority, got %v", err)
	}

	authority := types.Pubkey{3}
	ok := &Metadata{Program: types.Pubkey{1}, Authority: &authority}
	if err := ok.Encode(data); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data[84] = 3
	if _, err := DecodeMetadata(data); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData for bad compression, got %v", err)
	}

	if _, err := DecodeMetadata(data[:HeaderLen-1]); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData for short header, got %v", err)
	}
}

func TestValidateLength(t *testing.T) {
	tests := []struct {
		source DataSource
		n      int
		ok     bool
	}{
		{DataSourceDirect, 1, true},
		{DataSourceDirect, 0, false},
		{DataSourceUrl, 20, true},
		{DataSourceUrl, 0, false},
		{DataSourceExternal, ExternalDataLen, true},
		{DataSourceExternal, ExternalDataLen + 1, false},
		{DataSource(3), 1, false},
	}
	for _, tt := range tests {
		err := tt.source.ValidateLength(tt.n)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateLength(%s, %d): got %v, want ok=%v", tt.source, tt.n, err, tt.ok)
		}
	}
}

func TestExternalData(t *testing.T) {
	ext := &ExternalData{Address: types.Pubkey{7}, Offset: 2, Length: 3}
	decoded, err := DecodeExternalData(ext.Encode())
	if err != nil {
		t.Fatalf("DecodeExternalData failed: %v", err)
	}
	if *decoded != *ext {
		t.Errorf("ExternalData mismatch: got %+v, want %+v", decoded, ext)
	}

	target := []byte("0123456789")
	region, err := ext.Slice(target)
	if err != nil || string(region) != "234" {
		t.Errorf("Slice: got (%q, %v), want 234", region, err)
	}

	rest := &ExternalData{Offset: 8}
	region, err = rest.Slice(target)
	if err != nil || string(region) != "89" {
		t.Errorf("Slice to end: got (%q, %v), want 89", region, err)
	}

	past := &ExternalData{Offset: 8, Length: 5}
	if _, err := past.Slice(target); !errors.Is(err, svm.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestParseNames(t *testing.T) {
	if e, err := ParseEncoding("base64"); err != nil || e != EncodingBase64 {
		t.Errorf("ParseEncoding: got (%v, %v)", e, err)
	}
	if c, err := ParseCompression("gzip"); err != nil || c != CompressionGzip {
		t.Errorf("ParseCompression: got (%v, %v)", c, err)
	}
	if f, err := ParseFormat("toml"); err != nil || f != FormatToml {
		t.Errorf("ParseFormat: got (%v, %v)", f, err)
	}
	if _, err := ParseDataSource("ipfs"); err == nil {
		t.Error("ParseDataSource should reject unknown names")
	}
	if _, err := ParseSeed("a-seed-that-is-too-long"); err == nil {
		t.Error("ParseSeed should reject seeds longer than 16 bytes")
	}
	seed, _ := ParseSeed("idl")
	if seed.String() != "idl" {
		t.Errorf("Seed string mismatch: got %q", seed.String())
	}
}
