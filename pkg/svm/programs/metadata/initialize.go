package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// processInitialize creates a metadata record. The payload comes from exactly
// one of: the instruction data, a separate buffer, or a buffer already
// allocated at the record address (converted in place).
func processInitialize(ctx svm.InvokeContext, inst *InitializeInstruction) error {
	accs, err := accounts(ctx, 5)
	if err != nil {
		return err
	}
	metadata, authority, program, programData := accs[0], accs[1], accs[2], accs[3]
	buffer, err := optionalAccount(ctx, 5)
	if err != nil {
		return err
	}

	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if err := validateFormat(inst.Encoding, inst.Compression, inst.Format); err != nil {
		return err
	}
	if err := inst.DataSource.Validate(); err != nil {
		return err
	}

	if isAbsent(program) || !program.Executable {
		return ErrNotExecutableAccount
	}
	canonical, err := IsProgramAuthority(program, programData, authority.Key)
	if err != nil {
		return err
	}
	var delegate *types.Pubkey
	if !canonical {
		delegate = &authority.Key
	}
	addr, bump, err := Derive(program.Key, inst.Seed, delegate, ctx)
	if err != nil {
		return err
	}
	if addr != metadata.Key {
		return fmt.Errorf("%w: expected metadata %s, got %s", svm.ErrInvalidSeeds, addr, metadata.Key)
	}

	existing := state.Account(state.Empty{})
	if !metadata.DataIsEmpty() {
		if err := requireOwned(metadata); err != nil {
			return err
		}
		if existing, err = state.Decode(metadata.Data); err != nil {
			return err
		}
	}

	header := &state.Metadata{
		Program:     program.Key,
		Authority:   delegate,
		Mutable:     true,
		Canonical:   canonical,
		Seed:        inst.Seed,
		Encoding:    inst.Encoding,
		Compression: inst.Compression,
		Format:      inst.Format,
		DataSource:  inst.DataSource,
	}

	switch record := existing.(type) {
	case *state.Metadata:
		return fmt.Errorf("%w: %s", svm.ErrAccountAlreadyInitialized, metadata.Key)

	case *state.Buffer:
		if len(inst.Data) > 0 || buffer != nil {
			return fmt.Errorf("%w: payload already staged at the record address", svm.ErrInvalidInstructionData)
		}
		if record.Program == nil || *record.Program != program.Key || record.Seed != inst.Seed || record.Canonical != canonical {
			return fmt.Errorf("%w: staged buffer was derived for another record", svm.ErrInvalidSeeds)
		}
		if err := authorize(record.PDAInfo(), authority, program, programData); err != nil {
			return err
		}
		n := metadata.DataLen() - state.HeaderLen
		if err := inst.DataSource.ValidateLength(n); err != nil {
			return err
		}
		header.DataLength = uint32(n)
		return header.Encode(metadata.Data)

	default:
		if !metadata.DataIsEmpty() {
			return fmt.Errorf("%w: %s is allocated but holds no record", svm.ErrInvalidAccountData, metadata.Key)
		}
	}

	if (len(inst.Data) > 0) == (buffer != nil) {
		return fmt.Errorf("%w: supply either inline data or a buffer", svm.ErrInvalidInstructionData)
	}

	data := inst.Data
	if buffer != nil {
		staged, err := loadBuffer(buffer)
		if err != nil {
			return err
		}
		if err := verifyRecord(ctx, buffer.Key, staged.PDAInfo()); err != nil {
			return err
		}
		if err := authorizeBuffer(staged, buffer, authority, program, programData); err != nil {
			return err
		}
		data = append([]byte(nil), state.BufferPayload(buffer.Data)...)
	}
	if err := inst.DataSource.ValidateLength(len(data)); err != nil {
		return err
	}
	if err := chargeCopy(ctx, len(data)); err != nil {
		return err
	}

	if buffer != nil {
		if err := consumeBuffer(buffer, metadata); err != nil {
			return err
		}
	}
	if metadata.Lamports == 0 {
		return fmt.Errorf("%w: metadata %s is not funded", svm.ErrAccountNotRentExempt, metadata.Key)
	}

	seeds := append(Seeds(program.Key, inst.Seed, delegate), []byte{bump})
	if err := allocateAndAssign(ctx, metadata, state.HeaderLen+len(data), seeds); err != nil {
		return err
	}
	copy(metadata.Data[state.HeaderLen:], data)
	header.DataLength = uint32(len(data))
	return header.Encode(metadata.Data)
}

func validateFormat(e state.Encoding, c state.Compression, f state.Format) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return f.Validate()
}
