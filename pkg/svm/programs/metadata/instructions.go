package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// Instruction is the leading opcode byte of instruction data.
type Instruction uint8

const (
	InstructionWrite        Instruction = 0
	InstructionInitialize   Instruction = 1
	InstructionSetAuthority Instruction = 2
	InstructionSetData      Instruction = 3
	InstructionSetImmutable Instruction = 4
	InstructionTrim         Instruction = 5
	InstructionClose        Instruction = 6
	InstructionAllocate     Instruction = 7
	InstructionExtend       Instruction = 8
)

var instructionNames = [...]string{
	"Write", "Initialize", "SetAuthority", "SetData", "SetImmutable",
	"Trim", "Close", "Allocate", "Extend",
}

// String returns the instruction name.
func (i Instruction) String() string {
	if int(i) < len(instructionNames) {
		return instructionNames[i]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(i))
}

// WriteInstruction copies bytes into a buffer payload.
//
// Account layout:
//
//	[0] buffer (writable)
//	[1] authority (signer)
type WriteInstruction struct {
	// Offset is relative to the start of the payload.
	Offset uint32
	Data   []byte
}

// Decode decodes a Write instruction from bytes.
func (inst *WriteInstruction) Decode(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: Write requires an offset and at least one byte, got %d bytes",
			svm.ErrInvalidInstructionData, len(data))
	}
	inst.Offset = binary.LittleEndian.Uint32(data[0:4])
	inst.Data = data[4:]
	return nil
}

// Encode encodes a Write instruction to bytes.
func (inst *WriteInstruction) Encode() []byte {
	data := make([]byte, 1+4+len(inst.Data))
	data[0] = byte(InstructionWrite)
	binary.LittleEndian.PutUint32(data[1:5], inst.Offset)
	copy(data[5:], inst.Data)
	return data
}

// InitializeInstruction creates a metadata record.
//
// Account layout:
//
//	[0] metadata (writable)
//	[1] authority (signer)
//	[2] program
//	[3] program data (optional)
//	[4] system program
//	[5] buffer (writable, optional)
type InitializeInstruction struct {
	Seed        state.Seed
	Encoding    state.Encoding
	Compression state.Compression
	Format      state.Format
	DataSource  state.DataSource

	// Data is the inline payload. Empty when the payload comes from a buffer.
	Data []byte
}

const initializeArgsLen = state.SeedLen + 4

// Decode decodes an Initialize instruction from bytes.
func (inst *InitializeInstruction) Decode(data []byte) error {
	if len(data) < initializeArgsLen {
		return fmt.Errorf("%w: Initialize requires %d bytes, got %d",
			svm.ErrInvalidInstructionData, initializeArgsLen, len(data))
	}
	copy(inst.Seed[:], data[:state.SeedLen])
	inst.Encoding = state.Encoding(data[16])
	inst.Compression = state.Compression(data[17])
	inst.Format = state.Format(data[18])
	inst.DataSource = state.DataSource(data[19])
	inst.Data = data[initializeArgsLen:]
	return nil
}

// Encode encodes an Initialize instruction to bytes.
func (inst *InitializeInstruction) Encode() []byte {
	data := make([]byte, 1+initializeArgsLen+len(inst.Data))
	data[0] = byte(InstructionInitialize)
	copy(data[1:17], inst.Seed[:])
	data[17] = byte(inst.Encoding)
	data[18] = byte(inst.Compression)
	data[19] = byte(inst.Format)
	data[20] = byte(inst.DataSource)
	copy(data[21:], inst.Data)
	return data
}

// SetAuthorityInstruction replaces the explicit authority of a canonical
// record.
//
// Account layout:
//
//	[0] metadata (writable)
//	[1] authority (signer)
//	[2] program (optional)
//	[3] program data (optional)
type SetAuthorityInstruction struct {
	// NewAuthority is nil to clear the authority.
	NewAuthority *types.Pubkey
}

// Decode decodes a SetAuthority instruction from bytes.
func (inst *SetAuthorityInstruction) Decode(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: SetAuthority requires a flag byte", svm.ErrInvalidInstructionData)
	}
	switch data[0] {
	case 0:
		if len(data) != 1 {
			return fmt.Errorf("%w: unexpected key after empty authority flag", svm.ErrInvalidInstructionData)
		}
		inst.NewAuthority = nil
	case 1:
		key, err := types.PubkeyFromBytes(data[1:])
		if err != nil {
			return fmt.Errorf("%w: %v", svm.ErrInvalidInstructionData, err)
		}
		if key.IsZero() {
			return fmt.Errorf("%w: zero authority key", svm.ErrInvalidInstructionData)
		}
		inst.NewAuthority = &key
	default:
		return fmt.Errorf("%w: authority flag %d", svm.ErrInvalidInstructionData, data[0])
	}
	return nil
}

// Encode encodes a SetAuthority instruction to bytes.
func (inst *SetAuthorityInstruction) Encode() []byte {
	if inst.NewAuthority == nil {
		return []byte{byte(InstructionSetAuthority), 0}
	}
	data := make([]byte, 2+types.PubkeySize)
	data[0] = byte(InstructionSetAuthority)
	data[1] = 1
	copy(data[2:], inst.NewAuthority[:])
	return data
}

// SetDataInstruction updates the format fields and optionally the payload of
// a metadata record.
//
// Account layout:
//
//	[0] metadata (writable)
//	[1] authority (signer)
//	[2] buffer (writable, optional)
//	[3] program (optional)
//	[4] program data (optional)
type SetDataInstruction struct {
	Encoding    state.Encoding
	Compression state.Compression
	Format      state.Format

	// DataSource is nil when only the format fields change.
	DataSource *state.DataSource

	// Data is the inline payload. Empty when the payload comes from a buffer.
	Data []byte
}

// Decode decodes a SetData instruction from bytes.
func (inst *SetDataInstruction) Decode(data []byte) error {
	if len(data) < 3 {
		return fmt.Errorf("%w: SetData requires 3 bytes, got %d", svm.ErrInvalidInstructionData, len(data))
	}
	inst.Encoding = state.Encoding(data[0])
	inst.Compression = state.Compression(data[1])
	inst.Format = state.Format(data[2])
	inst.DataSource = nil
	inst.Data = nil
	if len(data) > 3 {
		source := state.DataSource(data[3])
		inst.DataSource = &source
		inst.Data = data[4:]
	}
	return nil
}

// Encode encodes a SetData instruction to bytes.
func (inst *SetDataInstruction) Encode() []byte {
	data := []byte{byte(InstructionSetData), byte(inst.Encoding), byte(inst.Compression), byte(inst.Format)}
	if inst.DataSource != nil {
		data = append(data, byte(*inst.DataSource))
		data = append(data, inst.Data...)
	}
	return data
}

// SetImmutableInstruction freezes a metadata record.
//
// Account layout:
//
//	[0] metadata (writable)
//	[1] authority (signer)
//	[2] program (optional)
//	[3] program data (optional)
type SetImmutableInstruction struct{}

// Encode encodes a SetImmutable instruction to bytes.
func (inst *SetImmutableInstruction) Encode() []byte {
	return []byte{byte(InstructionSetImmutable)}
}

// TrimInstruction shrinks an account to its used length and withdraws the
// lamports above the rent-exempt minimum.
//
// Account layout:
//
//	[0] account (writable)
//	[1] authority (signer)
//	[2] program (optional)
//	[3] program data (optional)
//	[4] destination (writable)
//	[5] rent sysvar
type TrimInstruction struct{}

// Encode encodes a Trim instruction to bytes.
func (inst *TrimInstruction) Encode() []byte {
	return []byte{byte(InstructionTrim)}
}

// CloseInstruction drains and deallocates a buffer or metadata account.
//
// Account layout:
//
//	[0] account (writable)
//	[1] authority (signer)
//	[2] program (optional)
//	[3] program data (optional)
//	[4] destination (writable)
type CloseInstruction struct{}

// Encode encodes a Close instruction to bytes.
func (inst *CloseInstruction) Encode() []byte {
	return []byte{byte(InstructionClose)}
}

// AllocateInstruction creates a buffer.
//
// Account layout:
//
//	[0] buffer (writable; signer for keypair buffers)
//	[1] authority (signer)
//	[2] program (optional for keypair buffers)
//	[3] program data (optional)
//	[4] system program
type AllocateInstruction struct {
	// Seed is nil for keypair buffers.
	Seed *state.Seed
}

// Decode decodes an Allocate instruction from bytes.
func (inst *AllocateInstruction) Decode(data []byte) error {
	switch len(data) {
	case 0:
		inst.Seed = nil
	case state.SeedLen:
		var seed state.Seed
		copy(seed[:], data)
		inst.Seed = &seed
	default:
		return fmt.Errorf("%w: Allocate seed must be empty or %d bytes, got %d",
			svm.ErrInvalidInstructionData, state.SeedLen, len(data))
	}
	return nil
}

// Encode encodes an Allocate instruction to bytes.
func (inst *AllocateInstruction) Encode() []byte {
	if inst.Seed == nil {
		return []byte{byte(InstructionAllocate)}
	}
	return append([]byte{byte(InstructionAllocate)}, inst.Seed[:]...)
}

// ExtendInstruction grows a buffer or metadata account.
//
// Account layout:
//
//	[0] account (writable)
//	[1] authority (signer)
//	[2] program (optional)
//	[3] program data (optional)
type ExtendInstruction struct {
	Length uint16
}

// Decode decodes an Extend instruction from bytes.
func (inst *ExtendInstruction) Decode(data []byte) error {
	if len(data) != 2 {
		return fmt.Errorf("%w: Extend requires 2 bytes, got %d", svm.ErrInvalidInstructionData, len(data))
	}
	inst.Length = binary.LittleEndian.Uint16(data)
	return nil
}

// Encode encodes an Extend instruction to bytes.
func (inst *ExtendInstruction) Encode() []byte {
	data := make([]byte, 3)
	data[0] = byte(InstructionExtend)
	binary.LittleEndian.PutUint16(data[1:], inst.Length)
	return data
}
