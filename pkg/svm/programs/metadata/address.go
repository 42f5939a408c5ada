package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/pda"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// Seeds returns the derivation seeds for a record of program. A nil delegate
// selects the canonical address; otherwise the delegate key is mixed in.
func Seeds(program types.Pubkey, seed state.Seed, delegate *types.Pubkey) [][]byte {
	if delegate == nil {
		return [][]byte{program[:], seed[:]}
	}
	return [][]byte{program[:], delegate[:], seed[:]}
}

// Derive returns the record address and bump for program, seed and delegate.
func Derive(program types.Pubkey, seed state.Seed, delegate *types.Pubkey, meter pda.Meter) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(Seeds(program, seed, delegate), ProgramID, meter)
}

// Verify checks that candidate is the canonical or delegated address of
// program and seed, and reports which one matched. The canonical derivation
// is tried first.
func Verify(candidate, program types.Pubkey, seed state.Seed, delegate *types.Pubkey, meter pda.Meter) (bool, error) {
	addr, _, err := Derive(program, seed, nil, meter)
	if err != nil {
		return false, err
	}
	if addr == candidate {
		return true, nil
	}

	if delegate != nil {
		addr, _, err = Derive(program, seed, delegate, meter)
		if err != nil {
			return false, err
		}
		if addr == candidate {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s is not derived from %s/%q", svm.ErrInvalidSeeds, candidate, program, seed.String())
}

// verifyRecord re-checks that key still matches the derivation recorded in
// info. Keypair buffers carry no derivation.
func verifyRecord(ctx svm.InvokeContext, key types.Pubkey, info state.PDAInfo) error {
	if info.Program == nil {
		return nil
	}
	canonical, err := Verify(key, *info.Program, info.Seed, info.Authority, ctx)
	if err != nil {
		return err
	}
	if canonical != info.Canonical {
		return fmt.Errorf("%w: canonical flag does not match address %s", svm.ErrInvalidSeeds, key)
	}
	return nil
}
