// Package accounts stores the ledger state: every account the runtime can
// load, keyed by address.
//
// Two implementations share the DB interface. MemoryDB backs tests and
// throwaway ledgers; BadgerDB persists a ledger directory on disk. Both apply
// a transaction's writes atomically through Apply, so a failed transaction
// never leaves partial state behind.
package accounts

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/fortiblox/x1-metadata/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when stored account bytes are malformed.
	ErrInvalidData = errors.New("invalid stored account")
)

// maxAccountDataSize bounds decoded data lengths.
const maxAccountDataSize = 10 * 1024 * 1024

// Account is a single stored account.
type Account struct {
	// Lamports is the account balance.
	Lamports uint64

	// Data is the account data, at most 10 MiB.
	Data []byte

	// Owner is the program that may modify Data and debit Lamports.
	Owner types.Pubkey

	// Executable marks program accounts.
	Executable bool

	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// IsZero reports whether the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// DataLen returns the length of account data.
func (a *Account) DataLen() int {
	return len(a.Data)
}

// Size returns the serialized size of the account.
func (a *Account) Size() int {
	// lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8
}

// Serialize encodes the account for storage.
func (a *Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	binary.LittleEndian.PutUint64(buf[0:], a.Lamports)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(a.Data)))
	offset := 16 + copy(buf[16:], a.Data)
	offset += copy(buf[offset:], a.Owner[:])
	if a.Executable {
		buf[offset] = 1
	}
	binary.LittleEndian.PutUint64(buf[offset+1:], a.RentEpoch)
	return buf
}

// DeserializeAccount decodes an account from bytes.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < 57 {
		return nil, ErrInvalidData
	}
	dataLen := binary.LittleEndian.Uint64(data[8:])
	if dataLen > maxAccountDataSize || uint64(len(data)) != 57+dataLen {
		return nil, ErrInvalidData
	}

	end := 16 + int(dataLen)
	acc := &Account{
		Lamports:   binary.LittleEndian.Uint64(data[0:]),
		Data:       append([]byte(nil), data[16:end]...),
		Executable: data[end+32] != 0,
		RentEpoch:  binary.LittleEndian.Uint64(data[end+33:]),
	}
	copy(acc.Owner[:], data[end:end+32])
	return acc, nil
}

// Change is one account write. A nil or zero Account deletes the entry.
type Change struct {
	Pubkey  types.Pubkey
	Account *Account
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent use.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores a single account outside of any transaction.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// Apply writes all changes atomically and records slot as the current
	// slot.
	Apply(slot uint64, changes []Change) error

	// IterateAccounts calls fn for every account in ascending key order.
	IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error

	// GetSlot returns the slot of the last applied change set.
	GetSlot() uint64

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory implementation of DB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*Account
	slot     uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(pubkey, account)
	return nil
}

func (m *MemoryDB) setLocked(pubkey types.Pubkey, account *Account) {
	if account == nil || account.IsZero() {
		delete(m.accounts, pubkey)
		return
	}
	m.accounts[pubkey] = account.Clone()
}

// Apply writes changes under a single lock.
func (m *MemoryDB) Apply(slot uint64, changes []Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, c := range changes {
		m.setLocked(c.Pubkey, c.Account)
	}
	m.slot = slot
	return nil
}

// IterateAccounts visits accounts in ascending key order.
func (m *MemoryDB) IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]types.Pubkey, 0, len(m.accounts))
	for k := range m.accounts {
		keys = append(keys, k)
	}
	snapshot := make(map[types.Pubkey]*Account, len(keys))
	for _, k := range keys {
		snapshot[k] = m.accounts[k].Clone()
	}
	m.mu.RUnlock()

	SortPubkeys(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

// GetSlot returns the current slot.
func (m *MemoryDB) GetSlot() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

// SortPubkeys sorts a slice of pubkeys in ascending byte order.
func SortPubkeys(pubkeys []types.Pubkey) {
	sort.Slice(pubkeys, func(i, j int) bool {
		return comparePubkeys(pubkeys[i], pubkeys[j]) < 0
	})
}

func comparePubkeys(a, b types.Pubkey) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

var _ DB = (*MemoryDB)(nil)
