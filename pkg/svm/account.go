package svm

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
)

// Account size limits enforced by the host.
const (
	// MaxAccountDataSize is the largest data length an account may have.
	MaxAccountDataSize = 10 * 1024 * 1024

	// MaxPermittedDataIncrease is how far one instruction may grow an account
	// beyond its length at instruction start.
	MaxPermittedDataIncrease = 10 * 1024
)

// AccountInfo is the mutable view of an account during instruction execution.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// DataLen returns the account data length.
func (a *AccountInfo) DataLen() int {
	return len(a.Data)
}

// DataIsEmpty reports whether the account holds no data.
func (a *AccountInfo) DataIsEmpty() bool {
	return len(a.Data) == 0
}

// IsOwnedBy reports whether owner owns the account.
func (a *AccountInfo) IsOwnedBy(owner types.Pubkey) bool {
	return a.Owner == owner
}

// Resize changes the data length. New bytes are zero.
func (a *AccountInfo) Resize(newLen int) error {
	if newLen < 0 || newLen > MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidRealloc, newLen)
	}
	if newLen <= len(a.Data) {
		a.Data = a.Data[:newLen]
		return nil
	}
	grown := make([]byte, newLen)
	copy(grown, a.Data)
	a.Data = grown
	return nil
}

// Close empties the account and hands it back to the system program. The
// balance must already have been moved out.
func (a *AccountInfo) Close() {
	a.Lamports = 0
	a.Data = nil
	a.Owner = types.SystemProgramAddr
}

// Clone returns a deep copy.
func (a *AccountInfo) Clone() *AccountInfo {
	c := *a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return &c
}

// StateEqual reports whether two views hold the same on-ledger state.
func (a *AccountInfo) StateEqual(b *AccountInfo) bool {
	return a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// MoveLamports debits src and credits dst with checked arithmetic.
func MoveLamports(src, dst *AccountInfo, amount uint64) error {
	if src == dst || amount == 0 {
		return nil
	}
	if src.Lamports < amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, src.Lamports)
	}
	credited := dst.Lamports + amount
	if credited < dst.Lamports {
		return ErrArithmeticOverflow
	}
	src.Lamports -= amount
	dst.Lamports = credited
	return nil
}
