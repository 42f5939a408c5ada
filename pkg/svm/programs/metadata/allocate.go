package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// processAllocate creates a buffer, either at a keypair address (the buffer
// signs for itself) or at an address derived like a metadata record.
func processAllocate(ctx svm.InvokeContext, inst *AllocateInstruction) error {
	accs, err := accounts(ctx, 5)
	if err != nil {
		return err
	}
	buffer, authority, program, programData := accs[0], accs[1], accs[2], accs[3]

	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}

	header := &state.Buffer{Authority: &authority.Key}
	var seeds [][]byte

	if buffer.Key == authority.Key {
		if inst.Seed != nil {
			return fmt.Errorf("%w: keypair buffers take no seed", svm.ErrInvalidInstructionData)
		}
	} else {
		if inst.Seed == nil {
			return fmt.Errorf("%w: derived buffers require a seed", svm.ErrInvalidInstructionData)
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
		addr, bump, err := Derive(program.Key, *inst.Seed, delegate, ctx)
		if err != nil {
			return err
		}
		if addr != buffer.Key {
			return fmt.Errorf("%w: expected buffer %s, got %s", svm.ErrInvalidSeeds, addr, buffer.Key)
		}

		seeds = append(Seeds(program.Key, *inst.Seed, delegate), []byte{bump})
		header.Program = &program.Key
		header.Canonical = canonical
		header.Seed = *inst.Seed
	}

	switch n := buffer.DataLen(); {
	case n == 0:
		if buffer.Lamports == 0 {
			return fmt.Errorf("%w: buffer %s is not funded", svm.ErrAccountNotRentExempt, buffer.Key)
		}
	case n >= state.HeaderLen:
		if buffer.Owner == ProgramID {
			if buffer.Data[0] != byte(state.DiscriminatorEmpty) {
				return fmt.Errorf("%w: %s", svm.ErrAccountAlreadyInitialized, buffer.Key)
			}
		}
	default:
		return fmt.Errorf("%w: buffer %s is %d bytes", svm.ErrInvalidAccountData, buffer.Key, n)
	}

	if err := allocateAndAssign(ctx, buffer, state.HeaderLen, seeds); err != nil {
		return err
	}
	return header.Encode(buffer.Data)
}
