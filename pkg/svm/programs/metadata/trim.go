package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// processTrim shrinks an account to the bytes it uses and sends every lamport
// above the rent-exempt minimum to the destination.
func processTrim(ctx svm.InvokeContext) error {
	accs, err := accounts(ctx, 6)
	if err != nil {
		return err
	}
	account, authority, destination, rentSysvar := accs[0], accs[1], accs[4], accs[5]
	program, programData := accs[2], accs[3]

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

	if rentSysvar.Key != types.SysvarRentAddr {
		return fmt.Errorf("%w: expected rent sysvar, got %s", svm.ErrInvalidArgument, rentSysvar.Key)
	}
	rent, err := svm.DecodeRent(rentSysvar.Data)
	if err != nil {
		return err
	}
	if destination.Key == account.Key {
		return fmt.Errorf("%w: destination is the trimmed account", svm.ErrInvalidArgument)
	}

	length := account.DataLen()
	if m, ok := record.(*state.Metadata); ok {
		length = state.HeaderLen + int(m.DataLength)
		if length > account.DataLen() {
			return fmt.Errorf("%w: data length %d exceeds account", svm.ErrInvalidAccountData, m.DataLength)
		}
	}

	minimum := rent.MinimumBalance(length)
	if account.Lamports < minimum {
		return fmt.Errorf("%w: have %d, need %d", svm.ErrAccountNotRentExempt, account.Lamports, minimum)
	}
	if err := account.Resize(length); err != nil {
		return err
	}
	return svm.MoveLamports(account, destination, account.Lamports-minimum)
}
