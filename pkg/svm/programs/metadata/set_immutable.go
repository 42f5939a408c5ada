package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// processSetImmutable freezes a record. Canonical records also drop their
// explicit authority.
func processSetImmutable(ctx svm.InvokeContext) error {
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
	if err := verifyRecord(ctx, metadata.Key, header.PDAInfo()); err != nil {
		return err
	}
	if err := authorize(header.PDAInfo(), authority, program, programData); err != nil {
		return err
	}
	if !header.Mutable {
		return fmt.Errorf("%w: already immutable", ErrImmutableMetadata)
	}

	header.Mutable = false
	if header.Canonical {
		header.Authority = nil
	}
	return header.Encode(metadata.Data)
}
