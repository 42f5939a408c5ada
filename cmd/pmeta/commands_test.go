package main

import (
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/client"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

func TestPayloadExternal(t *testing.T) {
	target := types.Pubkey{7}
	data, err := payload(state.DataSourceExternal, target.String()+":12:30", client.Format{})
	if err != nil {
		t.Fatalf("Failed to build payload: %v", err)
	}
	ref, err := state.DecodeExternalData(data)
	if err != nil {
		t.Fatalf("Failed to decode reference: %v", err)
	}
	if ref.Address != target || ref.Offset != 12 || ref.Length != 30 {
		t.Errorf("Reference mismatch: %+v", ref)
	}

	data, err = payload(state.DataSourceExternal, target.String(), client.Format{})
	if err != nil {
		t.Fatalf("Failed to build payload: %v", err)
	}
	if ref, _ = state.DecodeExternalData(data); ref.Offset != 0 || ref.Length != 0 {
		t.Errorf("Expected whole-account reference, got %+v", ref)
	}

	for _, bad := range []string{"not-a-key", target.String() + ":x", target.String() + ":1:2:3"} {
		if _, err := payload(state.DataSourceExternal, bad, client.Format{}); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestPayloadDirect(t *testing.T) {
	format := client.Format{Encoding: state.EncodingUtf8, Compression: state.CompressionGzip}
	data, err := payload(state.DataSourceDirect, `{"a":1}`, format)
	if err != nil {
		t.Fatalf("Failed to build payload: %v", err)
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Errorf("Expected gzip stream, got % x", data[:min(len(data), 4)])
	}

	url, err := payload(state.DataSourceUrl, "https://example.com/idl.json", format)
	if err != nil {
		t.Fatalf("Failed to build payload: %v", err)
	}
	if string(url) != "https://example.com/idl.json" {
		t.Errorf("Url payload mismatch: %q", url)
	}
}
