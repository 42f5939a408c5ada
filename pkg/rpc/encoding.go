package rpc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// MaxBase58DataLen is the largest account data returned base58-encoded.
const MaxBase58DataLen = 128

// ErrBase58TooLarge is returned when base58 is requested for data longer
// than MaxBase58DataLen.
var ErrBase58TooLarge = fmt.Errorf("encoded binary (base 58) data should be less than %d bytes, use base64 instead", MaxBase58DataLen)

// The encoder and decoder are shared; EncodeAll and DecodeAll may be called
// concurrently.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeAccountData returns data as an [encoded, encoding] pair.
func EncodeAccountData(data []byte, encoding Encoding) ([]string, error) {
	var encoded string
	switch encoding {
	case EncodingBase58:
		if len(data) > MaxBase58DataLen {
			return nil, ErrBase58TooLarge
		}
		encoded = base58.Encode(data)
	case EncodingBase64Zstd:
		encoded = base64.StdEncoding.EncodeToString(zstdEncoder.EncodeAll(data, nil))
	case EncodingBase64:
		encoded = base64.StdEncoding.EncodeToString(data)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	return []string{encoded, string(encoding)}, nil
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding Encoding) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(encoded)
	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(compressed, nil)
	}
	return nil, fmt.Errorf("unsupported encoding %q", encoding)
}

// ParseEncoding parses an encoding name. The empty name means base64.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(s); e {
	case "":
		return EncodingBase64, nil
	case EncodingBase58, EncodingBase64, EncodingBase64Zstd:
		return e, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", s)
}

// ApplyDataSlice returns the part of data selected by slice, clipped to the
// data length. A nil slice selects everything.
func ApplyDataSlice(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	n := uint64(len(data))
	start := min(slice.Offset, n)
	end := min(start+slice.Length, n)
	return data[start:end]
}

func encodeData(data []byte, encoding Encoding) (interface{}, *RPCError) {
	encoded, err := EncodeAccountData(data, encoding)
	if errors.Is(err, ErrBase58TooLarge) {
		return nil, invalidParams("%v", err)
	} else if err != nil {
		return nil, internalError("failed to encode data: %v", err)
	}
	return encoded, nil
}
