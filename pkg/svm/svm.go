// Package svm defines the host interface native programs run against: the
// account view, instruction shape, invoke context and the shared error
// taxonomy.
//
// Programs never touch storage directly. The runtime loads accounts into
// AccountInfo values, hands them to a Program through an InvokeContext and
// decides afterwards whether the changes are committed.
package svm

import (
	"errors"

	"github.com/fortiblox/x1-metadata/internal/types"
)

// Program errors. Handlers wrap these with fmt.Errorf("%w: ...") so callers can
// match with errors.Is.
var (
	// ErrMissingRequiredSignature is returned when an account that must sign did not.
	ErrMissingRequiredSignature = errors.New("missing required signature")

	// ErrIncorrectAuthority is returned when the signer may not manage the account.
	ErrIncorrectAuthority = errors.New("incorrect authority")

	// ErrInvalidSeeds is returned when an address does not match its derivation.
	ErrInvalidSeeds = errors.New("invalid seeds")

	// ErrInvalidAccountData is returned for malformed or unexpected account contents.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrAccountAlreadyInitialized is returned when initializing a used account.
	ErrAccountAlreadyInitialized = errors.New("account already initialized")

	// ErrUninitializedAccount is returned when an account has no record.
	ErrUninitializedAccount = errors.New("uninitialized account")

	// ErrAccountNotRentExempt is returned when a balance is below the rent minimum.
	ErrAccountNotRentExempt = errors.New("account not rent exempt")

	// ErrNotEnoughAccountKeys is returned when an instruction lists too few accounts.
	ErrNotEnoughAccountKeys = errors.New("not enough account keys")

	// ErrArithmeticOverflow is returned when checked arithmetic overflows.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidInstructionData is returned for malformed instruction payloads.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidArgument is returned for arguments that are well formed but unusable.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidAccountOwner is returned when an account is owned by the wrong program.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotWritable is returned when a read-only account is modified.
	ErrAccountNotWritable = errors.New("account not writable")

	// ErrInvalidRealloc is returned when a resize exceeds the host limits.
	ErrInvalidRealloc = errors.New("invalid account data realloc")

	// ErrUnsupportedProgram is returned when no program is registered for an id.
	ErrUnsupportedProgram = errors.New("unsupported program id")
)

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation: target program, ordered
// account list and opaque data.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Program is a natively executed program.
type Program interface {
	Process(ctx InvokeContext, data []byte) error
}

// InvokeContext is the view a program has of the instruction being executed.
type InvokeContext interface {
	// ProgramID returns the id of the executing program.
	ProgramID() types.Pubkey

	// AccountCount returns the number of accounts passed to the instruction.
	AccountCount() int

	// GetAccount returns the account at index in the instruction's list.
	// Duplicate keys return the same *AccountInfo.
	GetAccount(index int) (*AccountInfo, error)

	// Invoke runs a cross-program instruction. Each signer seed set is
	// turned into an address of the calling program that is treated as a
	// signer for the duration of the call.
	Invoke(ix Instruction, signerSeeds ...[][]byte) error

	// ConsumeCompute charges compute units against the transaction budget.
	ConsumeCompute(units uint64) error

	// Rent returns the rent parameters in effect.
	Rent() Rent

	// Log records a program log line.
	Log(msg string)
}
