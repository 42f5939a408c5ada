// Package client builds metadata program instructions and plans the
// transactions needed to publish a payload of any size.
package client

import (
	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

// Format bundles the three descriptive fields of a record.
type Format struct {
	Encoding    state.Encoding
	Compression state.Compression
	Format      state.Format
}

// Owner identifies the program a record belongs to. ProgramData may be nil
// when the caller is not acting as the upgrade authority.
type Owner struct {
	Program     types.Pubkey
	ProgramData *types.Pubkey
}

func writable(key types.Pubkey) svm.AccountMeta {
	return svm.AccountMeta{Pubkey: key, IsWritable: true}
}

func signer(key types.Pubkey) svm.AccountMeta {
	return svm.AccountMeta{Pubkey: key, IsSigner: true}
}

func readonly(key types.Pubkey) svm.AccountMeta {
	return svm.AccountMeta{Pubkey: key}
}

// optional fills an absent slot with the metadata program id.
func optional(key *types.Pubkey, isWritable bool) svm.AccountMeta {
	if key == nil {
		return readonly(metadata.ProgramID)
	}
	return svm.AccountMeta{Pubkey: *key, IsWritable: isWritable}
}

func bufferSlot(buffer *types.Pubkey, signs bool) svm.AccountMeta {
	meta := optional(buffer, true)
	meta.IsSigner = buffer != nil && signs
	return meta
}

func instruction(data []byte, accounts ...svm.AccountMeta) svm.Instruction {
	return svm.Instruction{ProgramID: metadata.ProgramID, Accounts: accounts, Data: data}
}

// Write copies data into buffer at offset.
func Write(buffer, authority types.Pubkey, offset uint32, data []byte) svm.Instruction {
	inst := metadata.WriteInstruction{Offset: offset, Data: data}
	return instruction(inst.Encode(), writable(buffer), signer(authority))
}

// InitializeParams describes a new metadata record. At most one of Data and
// Buffer is set; neither means the payload is already staged at Metadata.
type InitializeParams struct {
	Metadata   types.Pubkey
	Authority  types.Pubkey
	Owner      Owner
	Seed       state.Seed
	Format     Format
	DataSource state.DataSource
	Data       []byte
	Buffer     *types.Pubkey

	// BufferSigns marks a keypair buffer that authorizes itself.
	BufferSigns bool
}

// Initialize creates a metadata record.
func Initialize(p InitializeParams) svm.Instruction {
	inst := metadata.InitializeInstruction{
		Seed:        p.Seed,
		Encoding:    p.Format.Encoding,
		Compression: p.Format.Compression,
		Format:      p.Format.Format,
		DataSource:  p.DataSource,
		Data:        p.Data,
	}
	return instruction(inst.Encode(),
		writable(p.Metadata),
		signer(p.Authority),
		readonly(p.Owner.Program),
		optional(p.Owner.ProgramData, false),
		readonly(system.ProgramID),
		bufferSlot(p.Buffer, p.BufferSigns),
	)
}

// SetAuthority sets or, with a nil newAuthority, removes the explicit
// authority of a canonical record.
func SetAuthority(record, authority types.Pubkey, owner *Owner, newAuthority *types.Pubkey) svm.Instruction {
	inst := metadata.SetAuthorityInstruction{NewAuthority: newAuthority}
	program, programData := ownerSlots(owner)
	return instruction(inst.Encode(), writable(record), signer(authority), program, programData)
}

// SetDataParams describes an update of a record. A nil DataSource keeps the
// payload and changes only the format fields.
type SetDataParams struct {
	Metadata   types.Pubkey
	Authority  types.Pubkey
	Owner      *Owner
	Format     Format
	DataSource *state.DataSource
	Data       []byte
	Buffer     *types.Pubkey

	// BufferSigns marks a keypair buffer that authorizes itself.
	BufferSigns bool
}

// SetData updates the format fields and optionally the payload of a record.
func SetData(p SetDataParams) svm.Instruction {
	inst := metadata.SetDataInstruction{
		Encoding:    p.Format.Encoding,
		Compression: p.Format.Compression,
		Format:      p.Format.Format,
		DataSource:  p.DataSource,
		Data:        p.Data,
	}
	program, programData := ownerSlots(p.Owner)
	return instruction(inst.Encode(),
		writable(p.Metadata),
		signer(p.Authority),
		bufferSlot(p.Buffer, p.BufferSigns),
		program,
		programData,
	)
}

// SetImmutable freezes a record.
func SetImmutable(record, authority types.Pubkey, owner *Owner) svm.Instruction {
	program, programData := ownerSlots(owner)
	return instruction((&metadata.SetImmutableInstruction{}).Encode(),
		writable(record), signer(authority), program, programData)
}

// Trim shrinks account to its used length and sends the excess lamports to
// destination.
func Trim(account, authority types.Pubkey, owner *Owner, destination types.Pubkey) svm.Instruction {
	program, programData := ownerSlots(owner)
	return instruction((&metadata.TrimInstruction{}).Encode(),
		writable(account), signer(authority), program, programData,
		writable(destination), readonly(types.SysvarRentAddr))
}

// Close drains account into destination and deallocates it.
func Close(account, authority types.Pubkey, owner *Owner, destination types.Pubkey) svm.Instruction {
	program, programData := ownerSlots(owner)
	return instruction((&metadata.CloseInstruction{}).Encode(),
		writable(account), signer(authority), program, programData, writable(destination))
}

// Allocate creates a buffer. With a nil seed the buffer is a keypair account
// that signs for itself and authority must equal buffer.
func Allocate(buffer, authority types.Pubkey, owner *Owner, seed *state.Seed) svm.Instruction {
	program, programData := ownerSlots(owner)
	first := writable(buffer)
	first.IsSigner = seed == nil
	return instruction((&metadata.AllocateInstruction{Seed: seed}).Encode(),
		first, signer(authority), program, programData, readonly(system.ProgramID))
}

// Extend grows account by length bytes.
func Extend(account, authority types.Pubkey, owner *Owner, length uint16) svm.Instruction {
	program, programData := ownerSlots(owner)
	return instruction((&metadata.ExtendInstruction{Length: length}).Encode(),
		writable(account), signer(authority), program, programData)
}

func ownerSlots(owner *Owner) (svm.AccountMeta, svm.AccountMeta) {
	if owner == nil {
		return optional(nil, false), optional(nil, false)
	}
	return readonly(owner.Program), optional(owner.ProgramData, false)
}
