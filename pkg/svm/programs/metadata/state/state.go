// Package state is the binary codec for the accounts owned by the metadata
// program.
//
// Every account starts with a one-byte discriminator followed by a fixed
// 96-byte header (Buffer and Metadata headers have the same size, so a buffer
// can be turned into a metadata record in place). Optional keys are stored as
// all-zero bytes on the wire and surface as nil *types.Pubkey in Go.
package state

import (
	"fmt"
	"strings"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Layout constants.
const (
	// SeedLen is the width of the seed field.
	SeedLen = 16

	// HeaderLen is the size of both the Buffer and Metadata headers.
	HeaderLen = 96
)

// Seed is the fixed-width seed used to derive record addresses.
type Seed [SeedLen]byte

// ParseSeed converts a short text seed such as "idl" into a zero-padded Seed.
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	if len(s) == 0 || len(s) > SeedLen {
		return seed, fmt.Errorf("seed %q must be 1 to %d bytes", s, SeedLen)
	}
	copy(seed[:], s)
	return seed, nil
}

// String returns the seed with trailing zero bytes removed.
func (s Seed) String() string {
	return strings.TrimRight(string(s[:]), "\x00")
}

// Discriminator is the leading tag byte of every account.
type Discriminator uint8

const (
	DiscriminatorEmpty    Discriminator = 0
	DiscriminatorBuffer   Discriminator = 1
	DiscriminatorMetadata Discriminator = 2
)

// String returns the string representation of the discriminator.
func (d Discriminator) String() string {
	switch d {
	case DiscriminatorEmpty:
		return "Empty"
	case DiscriminatorBuffer:
		return "Buffer"
	case DiscriminatorMetadata:
		return "Metadata"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(d))
	}
}

// Account is the decoded form of an account: Empty, *Buffer or *Metadata.
type Account interface {
	Discriminator() Discriminator
}

// Empty is an account with no record: zero length, or allocated but not
// yet written.
type Empty struct{}

// Discriminator implements Account.
func (Empty) Discriminator() Discriminator { return DiscriminatorEmpty }

// PDAInfo is the derivation and control information common to both record
// kinds.
type PDAInfo struct {
	// Program is nil for keypair buffers.
	Program   *types.Pubkey
	Authority *types.Pubkey
	Canonical bool
	Seed      Seed
}

// Decode reads the record held in data.
func Decode(data []byte) (Account, error) {
	if len(data) == 0 {
		return Empty{}, nil
	}
	switch Discriminator(data[0]) {
	case DiscriminatorEmpty:
		return Empty{}, nil
	case DiscriminatorBuffer:
		return DecodeBuffer(data)
	case DiscriminatorMetadata:
		return DecodeMetadata(data)
	default:
		return nil, fmt.Errorf("%w: unknown discriminator %d", svm.ErrInvalidAccountData, data[0])
	}
}

func readOptionalKey(b []byte) *types.Pubkey {
	var key types.Pubkey
	copy(key[:], b)
	if key.IsZero() {
		return nil
	}
	return &key
}

func writeOptionalKey(b []byte, key *types.Pubkey) {
	if key == nil {
		clear(b[:types.PubkeySize])
		return
	}
	copy(b, key[:])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
