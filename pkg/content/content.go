// Package content converts between the text a user publishes and the bytes
// stored in a metadata record.
//
// Packing encodes the text, then compresses it. Unpacking reverses both
// steps. Encoding none treats the text as hex.
package content

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// MaxUnpackedSize bounds decompressed payloads.
const MaxUnpackedSize = 10 * 1024 * 1024

var (
	// ErrUnsupported is returned for unknown encodings or compressions.
	ErrUnsupported = errors.New("unsupported content parameters")

	// ErrMalformed is returned when stored bytes cannot be unpacked.
	ErrMalformed = errors.New("malformed content")
)

// Pack encodes text and compresses the result.
func Pack(text string, encoding state.Encoding, compression state.Compression) ([]byte, error) {
	raw, err := Encode(text, encoding)
	if err != nil {
		return nil, err
	}
	return Compress(raw, compression)
}

// Unpack decompresses data and decodes it back to text.
func Unpack(data []byte, encoding state.Encoding, compression state.Compression) (string, error) {
	raw, err := Decompress(data, compression)
	if err != nil {
		return "", err
	}
	return Decode(raw, encoding)
}

// Encode converts text to bytes.
func Encode(text string, encoding state.Encoding) ([]byte, error) {
	switch encoding {
	case state.EncodingNone:
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: hex: %v", ErrMalformed, err)
		}
		return b, nil
	case state.EncodingUtf8:
		return []byte(text), nil
	case state.EncodingBase58:
		b, err := base58.Decode(text)
		if err != nil {
			return nil, fmt.Errorf("%w: base58: %v", ErrMalformed, err)
		}
		return b, nil
	case state.EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: encoding %s", ErrUnsupported, encoding)
	}
}

// Decode converts bytes back to text.
func Decode(data []byte, encoding state.Encoding) (string, error) {
	switch encoding {
	case state.EncodingNone:
		return hex.EncodeToString(data), nil
	case state.EncodingUtf8:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid utf-8", ErrMalformed)
		}
		return string(data), nil
	case state.EncodingBase58:
		return base58.Encode(data), nil
	case state.EncodingBase64:
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("%w: encoding %s", ErrUnsupported, encoding)
	}
}

// Compress applies compression to data.
func Compress(data []byte, compression state.Compression) ([]byte, error) {
	switch compression {
	case state.CompressionNone:
		return data, nil
	case state.CompressionGzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case state.CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: compression %s", ErrUnsupported, compression)
	}
}

// Decompress reverses Compress. Output larger than MaxUnpackedSize is an
// error.
func Decompress(data []byte, compression state.Compression) ([]byte, error) {
	switch compression {
	case state.CompressionNone:
		return data, nil
	case state.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, MaxUnpackedSize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformed, err)
		}
		if len(out) > MaxUnpackedSize {
			return nil, fmt.Errorf("%w: gzip output exceeds %d bytes", ErrMalformed, MaxUnpackedSize)
		}
		return out, nil
	case state.CompressionZstd:
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxUnpackedSize))
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrMalformed, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %s", ErrUnsupported, compression)
	}
}

// PackExternal encodes a reference to bytes held by another account.
func PackExternal(ref state.ExternalData) []byte {
	return ref.Encode()
}

// ResolveExternal returns the region of target that an External payload
// refers to.
func ResolveExternal(payload, target []byte) ([]byte, error) {
	ref, err := state.DecodeExternalData(payload)
	if err != nil {
		return nil, err
	}
	return ref.Slice(target)
}
