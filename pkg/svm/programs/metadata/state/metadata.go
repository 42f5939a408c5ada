package state

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Metadata header offsets.
const (
	metadataProgramOffset     = 1
	metadataAuthorityOffset   = 33
	metadataMutableOffset     = 65
	metadataCanonicalOffset   = 66
	metadataSeedOffset        = 67
	metadataEncodingOffset    = 83
	metadataCompressionOffset = 84
	metadataFormatOffset      = 85
	metadataDataSourceOffset  = 86
	metadataDataLengthOffset  = 87
)

// Metadata is the header of a metadata record.
//
// A record without an explicit Authority is always canonical: it is managed
// by the upgrade authority of Program.
type Metadata struct {
	Program     types.Pubkey
	Authority   *types.Pubkey
	Mutable     bool
	Canonical   bool
	Seed        Seed
	Encoding    Encoding
	Compression Compression
	Format      Format
	DataSource  DataSource
	DataLength  uint32
}

// Discriminator implements Account.
func (*Metadata) Discriminator() Discriminator { return DiscriminatorMetadata }

// PDAInfo returns the record's derivation and control information.
func (m *Metadata) PDAInfo() PDAInfo {
	program := m.Program
	return PDAInfo{Program: &program, Authority: m.Authority, Canonical: m.Canonical, Seed: m.Seed}
}

// DecodeMetadata reads and validates a Metadata header.
func DecodeMetadata(data []byte) (*Metadata, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: metadata is %d bytes, header needs %d", svm.ErrInvalidAccountData, len(data), HeaderLen)
	}
	if Discriminator(data[0]) != DiscriminatorMetadata {
		return nil, fmt.Errorf("%w: expected Metadata, got %s", svm.ErrInvalidAccountData, Discriminator(data[0]))
	}

	m := &Metadata{
		Authority:   readOptionalKey(data[metadataAuthorityOffset:]),
		Mutable:     data[metadataMutableOffset] != 0,
		Canonical:   data[metadataCanonicalOffset] != 0,
		Encoding:    Encoding(data[metadataEncodingOffset]),
		Compression: Compression(data[metadataCompressionOffset]),
		Format:      Format(data[metadataFormatOffset]),
		DataSource:  DataSource(data[metadataDataSourceOffset]),
		DataLength:  binary.LittleEndian.Uint32(data[metadataDataLengthOffset:]),
	}
	copy(m.Program[:], data[metadataProgramOffset:])
	copy(m.Seed[:], data[metadataSeedOffset:metadataSeedOffset+SeedLen])

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metadata) validate() error {
	if err := m.Encoding.Validate(); err != nil {
		return err
	}
	if err := m.Compression.Validate(); err != nil {
		return err
	}
	if err := m.Format.Validate(); err != nil {
		return err
	}
	if err := m.DataSource.Validate(); err != nil {
		return err
	}
	if m.Authority == nil && !m.Canonical {
		return fmt.Errorf("%w: third-party metadata without authority", svm.ErrInvalidAccountData)
	}
	return nil
}

// Encode validates the header and writes it into the first HeaderLen bytes
// of dst.
func (m *Metadata) Encode(dst []byte) error {
	if len(dst) < HeaderLen {
		return fmt.Errorf("%w: metadata is %d bytes, header needs %d", svm.ErrInvalidAccountData, len(dst), HeaderLen)
	}
	if err := m.validate(); err != nil {
		return err
	}
	clear(dst[:HeaderLen])
	dst[0] = byte(DiscriminatorMetadata)
	copy(dst[metadataProgramOffset:], m.Program[:])
	writeOptionalKey(dst[metadataAuthorityOffset:], m.Authority)
	dst[metadataMutableOffset] = boolByte(m.Mutable)
	dst[metadataCanonicalOffset] = boolByte(m.Canonical)
	copy(dst[metadataSeedOffset:], m.Seed[:])
	dst[metadataEncodingOffset] = byte(m.Encoding)
	dst[metadataCompressionOffset] = byte(m.Compression)
	dst[metadataFormatOffset] = byte(m.Format)
	dst[metadataDataSourceOffset] = byte(m.DataSource)
	binary.LittleEndian.PutUint32(dst[metadataDataLengthOffset:], m.DataLength)
	return nil
}

// Payload returns the DataLength bytes following the header, clipped to the
// account length.
func (m *Metadata) Payload(data []byte) []byte {
	if len(data) <= HeaderLen {
		return nil
	}
	end := HeaderLen + int(m.DataLength)
	if end > len(data) {
		end = len(data)
	}
	return data[HeaderLen:end]
}
