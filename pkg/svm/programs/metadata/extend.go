package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// recordInfo returns the control information of a buffer or metadata record,
// rejecting frozen records.
func recordInfo(record state.Account) (state.PDAInfo, error) {
	switch r := record.(type) {
	case *state.Buffer:
		return r.PDAInfo(), nil
	case *state.Metadata:
		if !r.Mutable {
			return state.PDAInfo{}, ErrImmutableMetadata
		}
		return r.PDAInfo(), nil
	default:
		return state.PDAInfo{}, fmt.Errorf("%w: %s", svm.ErrInvalidAccountData, record.Discriminator())
	}
}

// processExtend grows an account by a fixed number of zero bytes so large
// payloads can be staged over several transactions.
func processExtend(ctx svm.InvokeContext, inst *ExtendInstruction) error {
	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	account, authority := accs[0], accs[1]
	program, err := optionalAccount(ctx, 2)
	if err != nil {
		return err
	}
	programData, err := optionalAccount(ctx, 3)
	if err != nil {
		return err
	}

	record, err := loadRecord(account)
	if err != nil {
		return err
	}
	info, err := recordInfo(record)
	if err != nil {
		return err
	}
	if err := verifyRecord(ctx, account.Key, info); err != nil {
		return err
	}
	if err := authorize(info, authority, program, programData); err != nil {
		return err
	}

	return account.Resize(account.DataLen() + int(inst.Length))
}
