// Package runtime is the local host ledger: it loads the accounts a
// transaction references, runs its instructions against native programs,
// enforces the host rules every program is subject to, and commits the result
// atomically.
//
// The runtime is deliberately small. There are no fees, no blockhash expiry
// and no BPF execution: only the system program and the metadata program are
// registered, and programs deployed with Deploy exist solely as upgradeable
// loader records that the metadata program can inspect.
package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/journal"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

var (
	// ErrAlreadyProcessed is returned when a transaction id was seen before.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrUnbalancedInstruction is returned when an instruction creates or
	// destroys lamports.
	ErrUnbalancedInstruction = errors.New("sum of account balances changed")

	// ErrExecutableModified is returned when an executable account changes.
	ErrExecutableModified = errors.New("executable account modified")
)

// PacketDataSize is the largest transaction a client may submit.
const PacketDataSize = 1232

// Recorder receives one entry per processed transaction.
type Recorder interface {
	Append(e *journal.Entry) (uint64, error)
}

// Config holds runtime limits.
type Config struct {
	// MaxTransactionSize bounds the serialized transaction. Zero disables
	// the check.
	MaxTransactionSize int

	// ComputeUnitLimit is the compute budget of each transaction.
	ComputeUnitLimit uint64

	// MaxAccountDataSize is the largest data length an account may reach.
	MaxAccountDataSize int

	// MaxPermittedDataIncrease bounds how much one instruction may grow an
	// account.
	MaxPermittedDataIncrease int

	// Rent is published in the rent sysvar at genesis and used for the
	// end-of-transaction rent check.
	Rent svm.Rent

	// SkipSignatureVerification trusts the signatures of incoming
	// transactions.
	SkipSignatureVerification bool
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		MaxTransactionSize:       PacketDataSize,
		ComputeUnitLimit:         svm.CUDefault,
		MaxAccountDataSize:       svm.MaxAccountDataSize,
		MaxPermittedDataIncrease: svm.MaxPermittedDataIncrease,
		Rent:                     svm.DefaultRent(),
	}
}

// Result describes the outcome of one transaction.
type Result struct {
	Signature types.Signature

	// Slot is the ledger slot after the transaction. Failed transactions
	// do not advance it.
	Slot uint64

	// Err is the failure, wrapped with the instruction index. Nil on
	// success.
	Err error

	Logs             []string
	ComputeUnitsUsed uint64
	ModifiedAccounts []types.Pubkey
}

// Success reports whether the transaction committed.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Executor runs transactions against an accounts database. Execute calls are
// serialized.
type Executor struct {
	mu sync.Mutex

	db       accounts.DB
	config   Config
	programs map[types.Pubkey]svm.Program
	recorder Recorder

	// seen holds ids of committed transactions.
	seen map[types.Signature]struct{}
}

// NewExecutor creates an executor with the native programs registered.
func NewExecutor(db accounts.DB, config Config) *Executor {
	return &Executor{
		db:     db,
		config: config,
		programs: map[types.Pubkey]svm.Program{
			system.ProgramID:   system.NewProcessor(),
			metadata.ProgramID: metadata.NewProcessor(),
		},
		seen: make(map[types.Signature]struct{}),
	}
}

// SetRecorder attaches a journal. Pass nil to detach.
func (e *Executor) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// DB returns the underlying accounts database.
func (e *Executor) DB() accounts.DB {
	return e.db
}

// Config returns the runtime configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Blockhash returns the hash clients should place in new transactions. It
// changes every time a transaction commits.
func (e *Executor) Blockhash() types.Hash {
	slot := e.db.GetSlot()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(slot >> (8 * i))
	}
	return types.ComputeHash(append([]byte("blockhash"), buf[:]...))
}

// Execute verifies, runs and commits tx. Transaction failures are reported
// in Result.Err; the returned error is reserved for storage failures.
func (e *Executor) Execute(tx *Transaction) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{Signature: tx.ID(), Slot: e.db.GetSlot()}
	meter := svm.NewComputeMeter(e.config.ComputeUnitLimit)

	accts, err := e.prepare(tx, meter)
	if err == nil {
		err = e.run(tx, accts, meter, result)
	}
	result.ComputeUnitsUsed = meter.Consumed()

	if err != nil {
		result.Err = err
		return result, e.record(tx, result)
	}

	changes := make([]accounts.Change, 0, len(accts.infos))
	for i, info := range accts.infos {
		if info.StateEqual(accts.loaded[i]) {
			continue
		}
		changes = append(changes, accounts.Change{
			Pubkey: info.Key,
			Account: &accounts.Account{
				Lamports:   info.Lamports,
				Data:       info.Data,
				Owner:      info.Owner,
				Executable: info.Executable,
				RentEpoch:  info.RentEpoch,
			},
		})
		result.ModifiedAccounts = append(result.ModifiedAccounts, info.Key)
	}

	slot := e.db.GetSlot() + 1
	if err := e.db.Apply(slot, changes); err != nil {
		return nil, fmt.Errorf("commit transaction %s: %w", result.Signature, err)
	}
	if !result.Signature.IsZero() {
		e.seen[result.Signature] = struct{}{}
	}
	result.Slot = slot
	return result, e.record(tx, result)
}

// txAccounts is the execution view of every account a transaction names.
type txAccounts struct {
	infos  []*svm.AccountInfo
	loaded []*svm.AccountInfo
	byKey  map[types.Pubkey]*svm.AccountInfo
}

// prepare sanitizes and authenticates tx and loads its accounts.
func (e *Executor) prepare(tx *Transaction, meter *svm.ComputeMeter) (*txAccounts, error) {
	if err := tx.Message.Sanitize(); err != nil {
		return nil, err
	}
	if limit := e.config.MaxTransactionSize; limit > 0 {
		if n := len(tx.Serialize()); n > limit {
			return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTransaction, n, limit)
		}
	}
	if id := tx.ID(); !id.IsZero() {
		if _, dup := e.seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, id)
		}
	}
	if !e.config.SkipSignatureVerification {
		if err := meter.Consume(svm.CUSignatureVerify * uint64(len(tx.Signatures))); err != nil {
			return nil, err
		}
		if err := tx.VerifySignatures(); err != nil {
			return nil, err
		}
	}

	msg := &tx.Message
	accts := &txAccounts{byKey: make(map[types.Pubkey]*svm.AccountInfo, len(msg.AccountKeys))}
	for i, key := range msg.AccountKeys {
		stored, err := e.db.GetAccount(key)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			stored = &accounts.Account{Owner: system.ProgramID}
		} else if err != nil {
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}

		info := &svm.AccountInfo{
			Key:        key,
			Owner:      stored.Owner,
			Lamports:   stored.Lamports,
			Data:       stored.Data,
			Executable: stored.Executable,
			RentEpoch:  stored.RentEpoch,
			IsSigner:   msg.IsSigner(i),
			IsWritable: msg.IsWritable(i) && !e.isReadOnlyKey(key, stored),
		}
		accts.infos = append(accts.infos, info)
		accts.loaded = append(accts.loaded, info.Clone())
		accts.byKey[key] = info
	}
	return accts, nil
}

// isReadOnlyKey reports keys that are never writable regardless of the
// message: programs, executables and sysvars.
func (e *Executor) isReadOnlyKey(key types.Pubkey, stored *accounts.Account) bool {
	if _, ok := e.programs[key]; ok {
		return true
	}
	return stored.Executable || types.IsSysvar(key)
}

// run executes the instructions in order, stopping at the first failure.
func (e *Executor) run(tx *Transaction, accts *txAccounts, meter *svm.ComputeMeter, result *Result) error {
	msg := &tx.Message
	for i, ix := range msg.Instructions {
		programID := msg.AccountKeys[ix.ProgramIDIndex]
		list := make([]*svm.AccountInfo, len(ix.Accounts))
		for j, idx := range ix.Accounts {
			list[j] = accts.infos[idx]
		}

		if err := e.executeInstruction(programID, list, ix.Data, accts, meter, result); err != nil {
			return fmt.Errorf("instruction %d failed: %w", i, err)
		}
	}
	return e.checkRent(accts)
}

func (e *Executor) executeInstruction(programID types.Pubkey, list []*svm.AccountInfo, data []byte,
	accts *txAccounts, meter *svm.ComputeMeter, result *Result) error {
	program, ok := e.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", svm.ErrUnsupportedProgram, programID)
	}

	start := snapshot(accts)
	writable := make(map[*svm.AccountInfo]bool, len(list))
	for _, acc := range list {
		if acc.IsWritable {
			writable[acc] = true
		}
	}

	frame := &frame{
		executor:  e,
		accts:     accts,
		programID: programID,
		accounts:  list,
		writable:  writable,
		meter:     meter,
		result:    result,
		pre:       snapshot(accts),
	}
	if err := program.Process(frame, data); err != nil {
		return err
	}
	if err := frame.verify(); err != nil {
		return err
	}
	return e.checkInstruction(start, accts)
}

// record appends a journal entry when a recorder is attached.
func (e *Executor) record(tx *Transaction, result *Result) error {
	if e.recorder == nil {
		return nil
	}
	entry := &journal.Entry{
		Signature:    result.Signature,
		Slot:         result.Slot,
		Time:         time.Now().UTC(),
		Success:      result.Success(),
		Accounts:     tx.Message.AccountKeys,
		Modified:     result.ModifiedAccounts,
		Logs:         result.Logs,
		ComputeUnits: result.ComputeUnitsUsed,
	}
	if result.Err != nil {
		entry.Err = result.Err.Error()
	}
	for _, ix := range tx.Message.Instructions {
		rec := journal.InstructionRecord{
			ProgramID: tx.Message.AccountKeys[ix.ProgramIDIndex],
			DataLen:   len(ix.Data),
		}
		if len(ix.Data) > 0 {
			rec.Opcode = ix.Data[0]
		}
		entry.Instructions = append(entry.Instructions, rec)
	}
	if _, err := e.recorder.Append(entry); err != nil {
		return fmt.Errorf("journal transaction %s: %w", result.Signature, err)
	}
	return nil
}
