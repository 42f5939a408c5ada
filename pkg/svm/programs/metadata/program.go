// Package metadata implements the program metadata registry: a native
// program that attaches typed payloads (IDLs, security contacts, arbitrary
// documents) to deployed programs.
//
// Records live at addresses derived from the program id and a short seed.
// The canonical record for a seed is controlled by the program's upgrade
// authority; anyone else may publish a third-party record at an address that
// also mixes in their own key. Large payloads are staged in buffer accounts
// and moved into a record with Initialize or SetData.
package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

// ProgramID is the id of the metadata program.
var ProgramID = types.MetadataProgramAddr

// Processor executes metadata program instructions.
type Processor struct{}

// NewProcessor creates a new metadata program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process decodes the opcode and dispatches to the matching handler.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty instruction", svm.ErrInvalidInstructionData)
	}
	if err := ctx.ConsumeCompute(svm.CUMetadataDefault); err != nil {
		return err
	}

	op, args := Instruction(data[0]), data[1:]
	if int(op) >= len(instructionNames) {
		return fmt.Errorf("%w: unknown opcode %d", svm.ErrInvalidInstructionData, data[0])
	}
	ctx.Log("Instruction: " + op.String())

	switch op {
	case InstructionWrite:
		var inst WriteInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processWrite(ctx, &inst)
	case InstructionInitialize:
		var inst InitializeInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processInitialize(ctx, &inst)
	case InstructionSetAuthority:
		var inst SetAuthorityInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processSetAuthority(ctx, &inst)
	case InstructionSetData:
		var inst SetDataInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processSetData(ctx, &inst)
	case InstructionSetImmutable:
		return processSetImmutable(ctx)
	case InstructionTrim:
		return processTrim(ctx)
	case InstructionClose:
		return processClose(ctx)
	case InstructionAllocate:
		var inst AllocateInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processAllocate(ctx, &inst)
	default:
		var inst ExtendInstruction
		if err := inst.Decode(args); err != nil {
			return err
		}
		return processExtend(ctx, &inst)
	}
}

// accounts returns the first n instruction accounts.
func accounts(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	if ctx.AccountCount() < n {
		return nil, fmt.Errorf("%w: need %d, got %d", svm.ErrNotEnoughAccountKeys, n, ctx.AccountCount())
	}
	out := make([]*svm.AccountInfo, n)
	for i := range out {
		acc, err := ctx.GetAccount(i)
		if err != nil {
			return nil, err
		}
		out[i] = acc
	}
	return out, nil
}

// optionalAccount returns the account at index, or nil when it is missing or
// marked absent.
func optionalAccount(ctx svm.InvokeContext, index int) (*svm.AccountInfo, error) {
	if index >= ctx.AccountCount() {
		return nil, nil
	}
	acc, err := ctx.GetAccount(index)
	if err != nil {
		return nil, err
	}
	if isAbsent(acc) {
		return nil, nil
	}
	return acc, nil
}

func requireOwned(acc *svm.AccountInfo) error {
	if acc.Owner != ProgramID {
		return fmt.Errorf("%w: %s is owned by %s", svm.ErrInvalidAccountOwner, acc.Key, acc.Owner)
	}
	return nil
}

// loadRecord decodes an account owned by this program. Accounts that hold no
// record are reported as uninitialized.
func loadRecord(acc *svm.AccountInfo) (state.Account, error) {
	if acc.DataIsEmpty() {
		return nil, fmt.Errorf("%w: %s", svm.ErrUninitializedAccount, acc.Key)
	}
	if err := requireOwned(acc); err != nil {
		return nil, err
	}
	record, err := state.Decode(acc.Data)
	if err != nil {
		return nil, err
	}
	if _, ok := record.(state.Empty); ok {
		return nil, fmt.Errorf("%w: %s", svm.ErrUninitializedAccount, acc.Key)
	}
	return record, nil
}

func loadMetadata(acc *svm.AccountInfo) (*state.Metadata, error) {
	record, err := loadRecord(acc)
	if err != nil {
		return nil, err
	}
	m, ok := record.(*state.Metadata)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds a %s", svm.ErrInvalidAccountData, acc.Key, record.Discriminator())
	}
	return m, nil
}

func loadBuffer(acc *svm.AccountInfo) (*state.Buffer, error) {
	record, err := loadRecord(acc)
	if err != nil {
		return nil, err
	}
	b, ok := record.(*state.Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds a %s", svm.ErrInvalidAccountData, acc.Key, record.Discriminator())
	}
	return b, nil
}

// chargeCopy meters payload bytes moved by an instruction.
func chargeCopy(ctx svm.InvokeContext, n int) error {
	kib := uint64(n+1023) / 1024
	return ctx.ConsumeCompute(kib * svm.CUMetadataPerKiB)
}

// allocateAndAssign sizes a system account and hands it to this program
// through the system program. seeds is nil when the account signs itself.
func allocateAndAssign(ctx svm.InvokeContext, acc *svm.AccountInfo, space int, seeds [][]byte) error {
	var signers [][][]byte
	if seeds != nil {
		signers = append(signers, seeds)
	}
	if acc.DataIsEmpty() && space > 0 {
		if err := ctx.Invoke(system.Allocate(acc.Key, uint64(space)), signers...); err != nil {
			return err
		}
	}
	if acc.Owner != ProgramID {
		if err := ctx.Invoke(system.Assign(acc.Key, ProgramID), signers...); err != nil {
			return err
		}
	}
	return nil
}

// consumeBuffer moves a buffer's whole balance into dst and closes it.
func consumeBuffer(buffer, dst *svm.AccountInfo) error {
	if err := svm.MoveLamports(buffer, dst, buffer.Lamports); err != nil {
		return err
	}
	buffer.Close()
	return nil
}
