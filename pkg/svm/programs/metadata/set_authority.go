package metadata

import (
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// processSetAuthority sets or clears the explicit authority of a canonical
// record. Third-party records keep their creator as authority for life.
func processSetAuthority(ctx svm.InvokeContext, inst *SetAuthorityInstruction) error {
	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	metadata, authority := accs[0], accs[1]
	program, err := optionalAccount(ctx, 2)
	if err != nil {
		return err
	}
	programData, err := optionalAccount(ctx, 3)
	if err != nil {
		return err
	}

	header, err := loadMetadata(metadata)
	if err != nil {
		return err
	}
	if !header.Canonical {
		return svm.ErrIncorrectAuthority
	}
	if !header.Mutable {
		return ErrImmutableMetadata
	}
	if err := verifyRecord(ctx, metadata.Key, header.PDAInfo()); err != nil {
		return err
	}
	if err := authorize(header.PDAInfo(), authority, program, programData); err != nil {
		return err
	}

	header.Authority = inst.NewAuthority
	return header.Encode(metadata.Data)
}
