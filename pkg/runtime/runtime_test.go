package runtime

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/loader"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

const sol = uint64(1_000_000_000)

func newTestExecutor(t *testing.T) (*Executor, *types.Keypair) {
	t.Helper()
	e := NewExecutor(accounts.NewMemoryDB(), DefaultConfig())
	if err := e.Genesis(); err != nil {
		t.Fatalf("Failed to write genesis: %v", err)
	}
	payer := types.KeypairFromSeed([32]byte{1})
	if err := e.Airdrop(payer.Pubkey(), 10*sol); err != nil {
		t.Fatalf("Failed to airdrop: %v", err)
	}
	return e, payer
}

func execute(t *testing.T, e *Executor, payer *types.Keypair, signers []*types.Keypair, ixs ...svm.Instruction) *Result {
	t.Helper()
	tx, err := NewTransaction(payer.Pubkey(), ixs, e.Blockhash())
	if err != nil {
		t.Fatalf("Failed to build transaction: %v", err)
	}
	if err := tx.Sign(append([]*types.Keypair{payer}, signers...)...); err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}
	result, err := e.Execute(tx)
	if err != nil {
		t.Fatalf("Failed to execute transaction: %v", err)
	}
	return result
}

func balance(t *testing.T, e *Executor, key types.Pubkey) uint64 {
	t.Helper()
	acc, err := e.GetAccount(key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	return acc.Lamports
}

func TestGenesis(t *testing.T) {
	e, _ := newTestExecutor(t)

	for key := range nativePrograms {
		acc, err := e.GetAccount(key)
		if err != nil {
			t.Fatalf("Failed to get native program %s: %v", key, err)
		}
		if !acc.Executable || acc.Owner != types.NativeLoaderAddr {
			t.Errorf("Native program %s not executable: %+v", key, acc)
		}
	}

	acc, err := e.GetAccount(types.SysvarRentAddr)
	if err != nil {
		t.Fatalf("Failed to get rent sysvar: %v", err)
	}
	rent, err := svm.DecodeRent(acc.Data)
	if err != nil {
		t.Fatalf("Failed to decode rent sysvar: %v", err)
	}
	if rent != DefaultConfig().Rent {
		t.Errorf("Rent mismatch: got %+v", rent)
	}

	if err := e.Genesis(); err != nil {
		t.Fatalf("Second genesis failed: %v", err)
	}
}

func TestExecuteTransfer(t *testing.T) {
	e, payer := newTestExecutor(t)
	to := types.Pubkey{42}

	result := execute(t, e, payer, nil, system.Transfer(payer.Pubkey(), to, sol))
	if !result.Success() {
		t.Fatalf("Transfer failed: %v", result.Err)
	}
	if result.Slot != 1 || e.DB().GetSlot() != 1 {
		t.Errorf("Slot mismatch: got %d, want 1", result.Slot)
	}
	if got := balance(t, e, to); got != sol {
		t.Errorf("Recipient balance mismatch: got %d, want %d", got, sol)
	}
	if got := balance(t, e, payer.Pubkey()); got != 9*sol {
		t.Errorf("Payer balance mismatch: got %d, want %d", got, 9*sol)
	}
	if len(result.ModifiedAccounts) != 2 {
		t.Errorf("Modified accounts mismatch: got %d, want 2", len(result.ModifiedAccounts))
	}
	if result.ComputeUnitsUsed == 0 {
		t.Error("Expected compute units to be charged")
	}
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	e, payer := newTestExecutor(t)
	to := types.Pubkey{42}

	result := execute(t, e, payer, nil,
		system.Transfer(payer.Pubkey(), to, sol),
		system.Transfer(payer.Pubkey(), to, 100*sol),
	)
	if !errors.Is(result.Err, svm.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", result.Err)
	}
	if got := balance(t, e, to); got != 0 {
		t.Errorf("Partial transfer committed: recipient has %d", got)
	}
	if e.DB().GetSlot() != 0 {
		t.Errorf("Failed transaction advanced slot to %d", e.DB().GetSlot())
	}
}

func TestExecuteRentCheck(t *testing.T) {
	e, payer := newTestExecutor(t)

	result := execute(t, e, payer, nil, system.Transfer(payer.Pubkey(), types.Pubkey{42}, 1000))
	if !errors.Is(result.Err, svm.ErrAccountNotRentExempt) {
		t.Errorf("Expected ErrAccountNotRentExempt, got %v", result.Err)
	}
}

func TestExecuteRejectsBadSignature(t *testing.T) {
	e, payer := newTestExecutor(t)

	tx, err := NewTransaction(payer.Pubkey(), []svm.Instruction{
		system.Transfer(payer.Pubkey(), types.Pubkey{42}, sol),
	}, e.Blockhash())
	if err != nil {
		t.Fatalf("Failed to build transaction: %v", err)
	}
	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	tx.Signatures[0][0] ^= 0xff

	result, err := e.Execute(tx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !errors.Is(result.Err, ErrSignatureFailure) {
		t.Errorf("Expected ErrSignatureFailure, got %v", result.Err)
	}
}

func TestExecuteRejectsDuplicate(t *testing.T) {
	e, payer := newTestExecutor(t)

	tx, err := NewTransaction(payer.Pubkey(), []svm.Instruction{
		system.Transfer(payer.Pubkey(), types.Pubkey{42}, sol),
	}, e.Blockhash())
	if err != nil {
		t.Fatalf("Failed to build transaction: %v", err)
	}
	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	first, err := e.Execute(tx)
	if err != nil || !first.Success() {
		t.Fatalf("First execution failed: %v %v", err, first.Err)
	}
	second, err := e.Execute(tx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !errors.Is(second.Err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed, got %v", second.Err)
	}
}

func TestExecuteMissingSigner(t *testing.T) {
	e, payer := newTestExecutor(t)
	other := types.KeypairFromSeed([32]byte{2})
	if err := e.Airdrop(other.Pubkey(), sol); err != nil {
		t.Fatalf("Failed to airdrop: %v", err)
	}

	// Assign requires the account itself to sign; list it as writable only.
	ix := system.Assign(other.Pubkey(), types.Pubkey{7})
	ix.Accounts[0].IsSigner = false
	result := execute(t, e, payer, nil, ix)
	if !errors.Is(result.Err, svm.ErrMissingRequiredSignature) {
		t.Errorf("Expected ErrMissingRequiredSignature, got %v", result.Err)
	}
}

func TestExecuteUnknownProgram(t *testing.T) {
	e, payer := newTestExecutor(t)

	result := execute(t, e, payer, nil, svm.Instruction{ProgramID: types.Pubkey{9}, Data: []byte{0}})
	if !errors.Is(result.Err, svm.ErrUnsupportedProgram) {
		t.Errorf("Expected ErrUnsupportedProgram, got %v", result.Err)
	}
}

func TestDeploy(t *testing.T) {
	e, _ := newTestExecutor(t)
	programID := types.Pubkey{5}
	authority := types.Pubkey{6}

	programData, err := e.Deploy(programID, &authority, []byte{0xde, 0xad})
	if err != nil {
		t.Fatalf("Failed to deploy: %v", err)
	}

	program, err := e.GetAccount(programID)
	if err != nil {
		t.Fatalf("Failed to get program: %v", err)
	}
	data, err := e.GetAccount(programData)
	if err != nil {
		t.Fatalf("Failed to get program data: %v", err)
	}
	if !program.Executable {
		t.Error("Program should be executable")
	}

	got, err := loader.UpgradeAuthority(
		&svm.AccountInfo{Key: programID, Owner: program.Owner, Data: program.Data},
		&svm.AccountInfo{Key: programData, Owner: data.Owner, Data: data.Data},
	)
	if err != nil {
		t.Fatalf("Failed to resolve upgrade authority: %v", err)
	}
	if got == nil || *got != authority {
		t.Errorf("Upgrade authority mismatch: got %v, want %s", got, authority)
	}
}

func TestExecuteRecordsJournal(t *testing.T) {
	e, payer := newTestExecutor(t)
	j, err := journal.Open(journal.DefaultConfig(filepath.Join(t.TempDir(), "journal.db")))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()
	e.SetRecorder(j)

	ok := execute(t, e, payer, nil, system.Transfer(payer.Pubkey(), types.Pubkey{42}, sol))
	failed := execute(t, e, payer, nil, system.Transfer(payer.Pubkey(), types.Pubkey{42}, 100*sol))

	entries, err := j.ByAccount(payer.Pubkey(), 10)
	if err != nil {
		t.Fatalf("Failed to query journal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entry count mismatch: got %d, want 2", len(entries))
	}
	if entries[0].Signature != failed.Signature || entries[0].Success || entries[0].Err == "" {
		t.Errorf("Newest entry mismatch: %+v", entries[0])
	}
	if entries[1].Signature != ok.Signature || !entries[1].Success {
		t.Errorf("Oldest entry mismatch: %+v", entries[1])
	}
	if len(entries[1].Instructions) != 1 || entries[1].Instructions[0].ProgramID != system.ProgramID {
		t.Errorf("Instruction record mismatch: %+v", entries[1].Instructions)
	}
}

func TestExecuteRejectsOversizedTransaction(t *testing.T) {
	e, payer := newTestExecutor(t)
	ix := svm.Instruction{
		ProgramID: system.ProgramID,
		Accounts:  []svm.AccountMeta{{Pubkey: payer.Pubkey(), IsSigner: true, IsWritable: true}},
		Data:      make([]byte, PacketDataSize),
	}

	result := execute(t, e, payer, nil, ix)
	if !errors.Is(result.Err, ErrInvalidTransaction) {
		t.Fatalf("Expected %v, got %v", ErrInvalidTransaction, result.Err)
	}
	if got := balance(t, e, payer.Pubkey()); got != 10*sol {
		t.Errorf("Payer balance changed: got %d, want %d", got, 10*sol)
	}
}
