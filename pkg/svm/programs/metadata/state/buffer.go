package state

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Buffer header offsets.
const (
	bufferProgramOffset   = 1
	bufferAuthorityOffset = 33
	bufferCanonicalOffset = 65
	bufferSeedOffset      = 66
)

// Buffer is the header of a staging account. The payload follows the header
// and extends to the end of the account.
type Buffer struct {
	// Program is set only for address-derived buffers.
	Program *types.Pubkey

	// Authority may write to, extend, trim or close the buffer. For a
	// keypair buffer it is the buffer's own address.
	Authority *types.Pubkey

	Canonical bool
	Seed      Seed
}

// Discriminator implements Account.
func (*Buffer) Discriminator() Discriminator { return DiscriminatorBuffer }

// IsPDA reports whether the buffer address was derived from seeds.
func (b *Buffer) IsPDA() bool {
	return b.Program != nil
}

// PDAInfo returns the buffer's derivation and control information.
func (b *Buffer) PDAInfo() PDAInfo {
	return PDAInfo{Program: b.Program, Authority: b.Authority, Canonical: b.Canonical, Seed: b.Seed}
}

// DecodeBuffer reads a Buffer header.
func DecodeBuffer(data []byte) (*Buffer, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: buffer is %d bytes, header needs %d", svm.ErrInvalidAccountData, len(data), HeaderLen)
	}
	if Discriminator(data[0]) != DiscriminatorBuffer {
		return nil, fmt.Errorf("%w: expected Buffer, got %s", svm.ErrInvalidAccountData, Discriminator(data[0]))
	}

	b := &Buffer{
		Program:   readOptionalKey(data[bufferProgramOffset:]),
		Authority: readOptionalKey(data[bufferAuthorityOffset:]),
		Canonical: data[bufferCanonicalOffset] != 0,
	}
	copy(b.Seed[:], data[bufferSeedOffset:bufferSeedOffset+SeedLen])
	return b, nil
}

// Encode writes the header into the first HeaderLen bytes of dst.
func (b *Buffer) Encode(dst []byte) error {
	if len(dst) < HeaderLen {
		return fmt.Errorf("%w: buffer is %d bytes, header needs %d", svm.ErrInvalidAccountData, len(dst), HeaderLen)
	}
	clear(dst[:HeaderLen])
	dst[0] = byte(DiscriminatorBuffer)
	writeOptionalKey(dst[bufferProgramOffset:], b.Program)
	writeOptionalKey(dst[bufferAuthorityOffset:], b.Authority)
	dst[bufferCanonicalOffset] = boolByte(b.Canonical)
	copy(dst[bufferSeedOffset:], b.Seed[:])
	return nil
}

// BufferPayload returns the bytes following a Buffer header.
func BufferPayload(data []byte) []byte {
	if len(data) <= HeaderLen {
		return nil
	}
	return data[HeaderLen:]
}
