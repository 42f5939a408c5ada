package system

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

type testContext struct {
	accounts []*svm.AccountInfo
	logs     []string
}

func (c *testContext) ProgramID() types.Pubkey { return ProgramID }
func (c *testContext) AccountCount() int       { return len(c.accounts) }

func (c *testContext) GetAccount(i int) (*svm.AccountInfo, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, svm.ErrNotEnoughAccountKeys
	}
	return c.accounts[i], nil
}

func (c *testContext) Invoke(svm.Instruction, ...[][]byte) error { return svm.ErrUnsupportedProgram }
func (c *testContext) ConsumeCompute(uint64) error               { return nil }
func (c *testContext) Rent() svm.Rent                            { return svm.DefaultRent() }
func (c *testContext) Log(msg string)                            { c.logs = append(c.logs, msg) }

func run(t *testing.T, ix svm.Instruction, accs ...*svm.AccountInfo) (*testContext, error) {
	t.Helper()
	for i, meta := range ix.Accounts {
		accs[i].Key = meta.Pubkey
		accs[i].IsSigner = accs[i].IsSigner || meta.IsSigner
		accs[i].IsWritable = meta.IsWritable
	}
	ctx := &testContext{accounts: accs}
	return ctx, NewProcessor().Process(ctx, ix.Data)
}

func TestCreateAccount(t *testing.T) {
	owner := types.MetadataProgramAddr
	funder := &svm.AccountInfo{Lamports: 10_000_000}
	target := &svm.AccountInfo{}
	lamports := svm.DefaultRent().MinimumBalance(96)

	ctx, err := run(t, CreateAccount(types.Pubkey{1}, types.Pubkey{2}, lamports, 96, owner), funder, target)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if target.Lamports != lamports || len(target.Data) != 96 || target.Owner != owner {
		t.Errorf("Created account mismatch: %+v", target)
	}
	if funder.Lamports != 10_000_000-lamports {
		t.Errorf("Funder balance mismatch: got %d", funder.Lamports)
	}
	if len(ctx.logs) != 1 || ctx.logs[0] != "CreateAccount: success" {
		t.Errorf("Unexpected logs: %v", ctx.logs)
	}
}

func TestCreateAccountNotRentExempt(t *testing.T) {
	funder := &svm.AccountInfo{Lamports: 10_000_000}
	target := &svm.AccountInfo{}

	_, err := run(t, CreateAccount(types.Pubkey{1}, types.Pubkey{2}, 1, 96, types.MetadataProgramAddr), funder, target)
	if !errors.Is(err, svm.ErrAccountNotRentExempt) {
		t.Errorf("Expected ErrAccountNotRentExempt, got %v", err)
	}
}

func TestAllocateAndAssign(t *testing.T) {
	account := &svm.AccountInfo{Lamports: 5}

	if _, err := run(t, Allocate(types.Pubkey{3}, 10), account); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(account.Data) != 10 {
		t.Errorf("Data length mismatch: got %d, want 10", len(account.Data))
	}

	if _, err := run(t, Allocate(types.Pubkey{3}, 20), account); !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Errorf("Expected ErrAccountAlreadyInUse, got %v", err)
	}

	if _, err := run(t, Assign(types.Pubkey{3}, types.MetadataProgramAddr), account); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if account.Owner != types.MetadataProgramAddr {
		t.Errorf("Owner mismatch: got %s", account.Owner)
	}

	if _, err := run(t, Assign(types.Pubkey{3}, types.Pubkey{9}), account); !errors.Is(err, svm.ErrInvalidAccountOwner) {
		t.Errorf("Expected ErrInvalidAccountOwner, got %v", err)
	}
}

func TestAllocateRequiresSigner(t *testing.T) {
	ix := Allocate(types.Pubkey{3}, 10)
	ix.Accounts[0].IsSigner = false

	if _, err := run(t, ix, &svm.AccountInfo{}); !errors.Is(err, svm.ErrMissingRequiredSignature) {
		t.Errorf("Expected ErrMissingRequiredSignature, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	from := &svm.AccountInfo{Lamports: 100}
	to := &svm.AccountInfo{}

	if _, err := run(t, Transfer(types.Pubkey{1}, types.Pubkey{2}, 60), from, to); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if from.Lamports != 40 || to.Lamports != 60 {
		t.Errorf("Balances mismatch: got %d/%d, want 40/60", from.Lamports, to.Lamports)
	}

	if _, err := run(t, Transfer(types.Pubkey{1}, types.Pubkey{2}, 41), from, to); !errors.Is(err, svm.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestUnknownInstruction(t *testing.T) {
	if _, err := run(t, svm.Instruction{Data: []byte{99, 0, 0, 0}}); !errors.Is(err, svm.ErrInvalidInstructionData) {
		t.Errorf("Expected ErrInvalidInstructionData, got %v", err)
	}
}
