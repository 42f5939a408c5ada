package loader

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// UpgradeAuthority resolves the upgrade authority of program using its
// program data account.
//
// Programs owned by other loaders have no upgrade authority and return nil.
// An upgradeable program whose records are malformed, or whose program data
// account is not the one it names, is an error.
func UpgradeAuthority(program, programData *svm.AccountInfo) (*types.Pubkey, error) {
	if program.Owner != types.BPFLoaderUpgradeableAddr {
		return nil, nil
	}

	state, err := DecodeProgram(program.Data)
	if err != nil {
		return nil, err
	}
	if state.ProgramDataAddress != programData.Key {
		return nil, fmt.Errorf("%w: program data account mismatch: program names %s, got %s",
			svm.ErrInvalidAccountData, state.ProgramDataAddress, programData.Key)
	}

	header, err := DecodeProgramData(programData.Data)
	if err != nil {
		return nil, err
	}
	return header.UpgradeAuthority, nil
}
