package runtime

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/loader"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

// nativePrograms are written at genesis as executable accounts.
var nativePrograms = map[types.Pubkey]string{
	types.SystemProgramAddr:   "system_program",
	types.MetadataProgramAddr: "program_metadata",
}

// Genesis writes the native program accounts and the rent sysvar. Accounts
// that already exist are left alone, so Genesis may run on every start.
func (e *Executor) Genesis() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var changes []accounts.Change
	for key, name := range nativePrograms {
		changes = e.appendMissing(changes, key, &accounts.Account{
			Lamports:   1,
			Data:       []byte(name),
			Owner:      types.NativeLoaderAddr,
			Executable: true,
		})
	}
	rent := e.config.Rent.Encode()
	changes = e.appendMissing(changes, types.SysvarRentAddr, &accounts.Account{
		Lamports: e.config.Rent.MinimumBalance(len(rent)),
		Data:     rent,
		Owner:    types.SysvarOwnerAddr,
	})
	if len(changes) == 0 {
		return nil
	}
	if err := e.db.Apply(e.db.GetSlot(), changes); err != nil {
		return fmt.Errorf("write genesis accounts: %w", err)
	}
	return nil
}

func (e *Executor) appendMissing(changes []accounts.Change, key types.Pubkey, acc *accounts.Account) []accounts.Change {
	if _, err := e.db.GetAccount(key); errors.Is(err, accounts.ErrAccountNotFound) {
		changes = append(changes, accounts.Change{Pubkey: key, Account: acc})
	}
	return changes
}

// Airdrop credits lamports to a system account, creating it if needed.
func (e *Executor) Airdrop(to types.Pubkey, lamports uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc, err := e.db.GetAccount(to)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		acc = &accounts.Account{Owner: system.ProgramID}
	} else if err != nil {
		return err
	}
	if acc.Lamports+lamports < acc.Lamports {
		return svm.ErrArithmeticOverflow
	}
	acc.Lamports += lamports
	return e.db.SetAccount(to, acc)
}

// SetAccount overwrites an account outside of any transaction.
func (e *Executor) SetAccount(key types.Pubkey, acc *accounts.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.SetAccount(key, acc)
}

// GetAccount returns a stored account.
func (e *Executor) GetAccount(key types.Pubkey) (*accounts.Account, error) {
	return e.db.GetAccount(key)
}

// Deploy writes an upgradeable program and its program data account. A nil
// authority deploys a program that can no longer be upgraded. It returns the
// program data address.
func (e *Executor) Deploy(programID types.Pubkey, authority *types.Pubkey, code []byte) (types.Pubkey, error) {
	programData, _, err := loader.ProgramDataAddress(programID)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("derive program data address: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	programRecord := (&loader.ProgramState{ProgramDataAddress: programData}).Encode()
	dataRecord := (&loader.ProgramDataState{
		Slot:             e.db.GetSlot(),
		UpgradeAuthority: authority,
	}).Encode(code)

	changes := []accounts.Change{
		{Pubkey: programID, Account: &accounts.Account{
			Lamports:   e.config.Rent.MinimumBalance(len(programRecord)),
			Data:       programRecord,
			Owner:      types.BPFLoaderUpgradeableAddr,
			Executable: true,
		}},
		{Pubkey: programData, Account: &accounts.Account{
			Lamports: e.config.Rent.MinimumBalance(len(dataRecord)),
			Data:     dataRecord,
			Owner:    types.BPFLoaderUpgradeableAddr,
		}},
	}
	if err := e.db.Apply(e.db.GetSlot(), changes); err != nil {
		return types.Pubkey{}, fmt.Errorf("deploy %s: %w", programID, err)
	}
	return programData, nil
}

// DeployLegacy writes an executable program owned by a non-upgradeable
// loader. Such programs have no upgrade authority.
func (e *Executor) DeployLegacy(programID types.Pubkey, code []byte) error {
	return e.SetAccount(programID, &accounts.Account{
		Lamports:   e.config.Rent.MinimumBalance(len(code)),
		Data:       append([]byte(nil), code...),
		Owner:      types.BPFLoader2Addr,
		Executable: true,
	})
}
