package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// processClose drains a buffer or metadata account into the destination and
// deallocates it.
func processClose(ctx svm.InvokeContext) error {
	accs, err := accounts(ctx, 5)
	if err != nil {
		return err
	}
	account, authority, program, programData, destination := accs[0], accs[1], accs[2], accs[3], accs[4]

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
	if destination.Key == account.Key {
		return fmt.Errorf("%w: destination is the closed account", svm.ErrInvalidArgument)
	}

	if err := svm.MoveLamports(account, destination, account.Lamports); err != nil {
		return err
	}
	account.Close()
	return nil
}
