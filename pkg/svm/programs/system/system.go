// Package system implements the subset of the System Program the metadata
// registry relies on: creating, funding, allocating and assigning accounts.
//
// The metadata program reaches it through cross-program invocation to
// allocate and assign record accounts, signing with derived-address seeds.
package system

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// ErrAccountAlreadyInUse is returned when creating or allocating an account
// that already holds data or belongs to another program.
var ErrAccountAlreadyInUse = errors.New("account already in use")

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 4 {
		return svm.ErrInvalidInstructionData
	}
	if err := ctx.ConsumeCompute(svm.CUSystemProgramDefault); err != nil {
		return err
	}

	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, data[4:])
	case InstructionAssign:
		return p.processAssign(ctx, data[4:])
	case InstructionTransfer:
		return p.processTransfer(ctx, data[4:])
	case InstructionAllocate:
		return p.processAllocate(ctx, data[4:])
	default:
		return svm.ErrInvalidInstructionData
	}
}

func accounts(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	out := make([]*svm.AccountInfo, n)
	for i := range out {
		acc, err := ctx.GetAccount(i)
		if err != nil {
			return nil, svm.ErrNotEnoughAccountKeys
		}
		out[i] = acc
	}
	return out, nil
}

// processCreateAccount funds, allocates and assigns a fresh account.
func (p *Processor) processCreateAccount(ctx svm.InvokeContext, data []byte) error {
	// lamports (8) + space (8) + owner (32)
	if len(data) < 48 {
		return svm.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data[0:8])
	space := binary.LittleEndian.Uint64(data[8:16])
	var owner types.Pubkey
	copy(owner[:], data[16:48])

	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	funder, newAccount := accs[0], accs[1]

	if !funder.IsSigner || !newAccount.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if newAccount.Lamports > 0 || !newAccount.DataIsEmpty() || newAccount.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, newAccount.Key)
	}
	if space > svm.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes", svm.ErrInvalidRealloc, space)
	}
	if !ctx.Rent().IsExempt(lamports, int(space)) {
		return svm.ErrAccountNotRentExempt
	}

	if err := svm.MoveLamports(funder, newAccount, lamports); err != nil {
		return err
	}
	newAccount.Data = make([]byte, space)
	newAccount.Owner = owner

	ctx.Log("CreateAccount: success")
	return nil
}

// processAssign changes the owner of a system account.
func (p *Processor) processAssign(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 32 {
		return svm.ErrInvalidInstructionData
	}
	var owner types.Pubkey
	copy(owner[:], data[0:32])

	accs, err := accounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accs[0]

	if account.Owner == owner {
		return nil
	}
	if !account.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return svm.ErrInvalidAccountOwner
	}
	account.Owner = owner

	ctx.Log("Assign: success")
	return nil
}

// processTransfer moves lamports out of a system account.
func (p *Processor) processTransfer(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 8 {
		return svm.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data[0:8])

	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	from, to := accs[0], accs[1]

	if !from.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if !from.DataIsEmpty() {
		return fmt.Errorf("%w: transfer source must not carry data", svm.ErrInvalidArgument)
	}
	if !from.IsWritable || !to.IsWritable {
		return svm.ErrAccountNotWritable
	}
	if err := svm.MoveLamports(from, to, lamports); err != nil {
		return err
	}

	ctx.Log("Transfer: success")
	return nil
}

// processAllocate gives an empty system account its data length.
func (p *Processor) processAllocate(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 8 {
		return svm.ErrInvalidInstructionData
	}
	space := binary.LittleEndian.Uint64(data[0:8])

	accs, err := accounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accs[0]

	if !account.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if !account.DataIsEmpty() || account.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, account.Key)
	}
	if space > svm.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes", svm.ErrInvalidRealloc, space)
	}
	account.Data = make([]byte, space)

	ctx.Log("Allocate: success")
	return nil
}
