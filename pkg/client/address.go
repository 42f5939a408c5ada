package client

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/loader"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// Seed converts a short text seed such as "idl" into the fixed-width seed.
func Seed(s string) (state.Seed, error) {
	return state.ParseSeed(s)
}

// FindMetadataAddress derives the address of a record. A nil authority gives
// the canonical record; otherwise the third-party record of authority.
func FindMetadataAddress(program types.Pubkey, authority *types.Pubkey, seed state.Seed) (types.Pubkey, error) {
	addr, _, err := metadata.Derive(program, seed, authority, nil)
	return addr, err
}

// FindBufferAddress derives the address of a buffer staged for the record
// FindMetadataAddress returns for the same arguments.
func FindBufferAddress(program types.Pubkey, authority *types.Pubkey, seed state.Seed) (types.Pubkey, error) {
	return FindMetadataAddress(program, authority, seed)
}

// ResolveOwner loads program and reports whether authority is its upgrade
// authority. The returned Owner carries the program data address for
// upgradeable programs.
func ResolveOwner(db accounts.DB, program, authority types.Pubkey) (*Owner, bool, error) {
	programAcc, err := db.GetAccount(program)
	if err != nil {
		return nil, false, fmt.Errorf("load program %s: %w", program, err)
	}
	owner := &Owner{Program: program}
	if programAcc.Owner != types.BPFLoaderUpgradeableAddr {
		return owner, false, nil
	}

	record, err := loader.DecodeProgram(programAcc.Data)
	if err != nil {
		return nil, false, err
	}
	owner.ProgramData = &record.ProgramDataAddress

	dataAcc, err := db.GetAccount(record.ProgramDataAddress)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return owner, false, nil
	} else if err != nil {
		return nil, false, err
	}
	upgradeAuthority, err := loader.UpgradeAuthority(
		&svm.AccountInfo{Key: program, Owner: programAcc.Owner, Data: programAcc.Data},
		&svm.AccountInfo{Key: record.ProgramDataAddress, Owner: dataAcc.Owner, Data: dataAcc.Data},
	)
	if err != nil {
		return nil, false, err
	}
	return owner, upgradeAuthority != nil && *upgradeAuthority == authority, nil
}
