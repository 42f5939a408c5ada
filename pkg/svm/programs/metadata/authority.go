package metadata

import (
	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/loader"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// isAbsent reports whether an optional account slot was left empty. Clients
// fill skipped slots with the metadata program id.
func isAbsent(acc *svm.AccountInfo) bool {
	return acc == nil || acc.Key == ProgramID
}

// IsProgramAuthority reports whether key is the upgrade authority of
// program. Absent accounts and programs without an upgrade authority give
// false.
func IsProgramAuthority(program, programData *svm.AccountInfo, key types.Pubkey) (bool, error) {
	if isAbsent(program) {
		return false, nil
	}
	if !program.Executable {
		return false, ErrNotExecutableAccount
	}
	if isAbsent(programData) {
		return false, nil
	}

	authority, err := loader.UpgradeAuthority(program, programData)
	if err != nil {
		return false, err
	}
	return authority != nil && *authority == key, nil
}

// authorize checks that signer may manage a record. The explicit authority
// always qualifies; the program's upgrade authority also qualifies for
// canonical records when the matching program is supplied.
func authorize(info state.PDAInfo, signer, program, programData *svm.AccountInfo) error {
	if !signer.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if info.Authority != nil && *info.Authority == signer.Key {
		return nil
	}

	if info.Canonical && info.Program != nil && !isAbsent(program) && program.Key == *info.Program {
		ok, err := IsProgramAuthority(program, programData, signer.Key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return svm.ErrIncorrectAuthority
}

// authorizeBuffer checks that a buffer consumed by another record may be
// used. A keypair buffer that signs for itself needs nothing more.
func authorizeBuffer(b *state.Buffer, buffer, signer, program, programData *svm.AccountInfo) error {
	if buffer.IsSigner && b.Authority != nil && *b.Authority == buffer.Key {
		return nil
	}
	return authorize(b.PDAInfo(), signer, program, programData)
}
