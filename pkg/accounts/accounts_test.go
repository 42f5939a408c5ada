package accounts

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
)

func TestAccountSerialization(t *testing.T) {
	account := &Account{
		Lamports:   1_000_000_000,
		Data:       []byte("test data"),
		Owner:      types.MetadataProgramAddr,
		Executable: true,
		RentEpoch:  100,
	}

	restored, err := DeserializeAccount(account.Serialize())
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if restored.Lamports != account.Lamports {
		t.Errorf("Lamports mismatch: got %d, want %d", restored.Lamports, account.Lamports)
	}
	if !bytes.Equal(restored.Data, account.Data) {
		t.Errorf("Data mismatch: got %v, want %v", restored.Data, account.Data)
	}
	if restored.Owner != account.Owner || !restored.Executable || restored.RentEpoch != 100 {
		t.Errorf("Account mismatch: got %+v", restored)
	}

	if _, err := DeserializeAccount(account.Serialize()[:60]); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Expected ErrInvalidData for truncated account, got %v", err)
	}
}

func openDBs(t *testing.T) map[string]DB {
	t.Helper()
	cfg := DefaultBadgerDBConfig("")
	cfg.InMemory = true
	bdb, err := NewBadgerDB(cfg)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { bdb.Close() })
	return map[string]DB{"memory": NewMemoryDB(), "badger": bdb}
}

func TestApply(t *testing.T) {
	for name, db := range openDBs(t) {
		t.Run(name, func(t *testing.T) {
			a, b := types.Pubkey{1}, types.Pubkey{2}

			err := db.Apply(7, []Change{
				{Pubkey: a, Account: &Account{Lamports: 10, Data: []byte{1, 2}}},
				{Pubkey: b, Account: &Account{Lamports: 20}},
			})
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if db.GetSlot() != 7 {
				t.Errorf("Slot mismatch: got %d, want 7", db.GetSlot())
			}
			if count, _ := db.AccountsCount(); count != 2 {
				t.Errorf("Count mismatch: got %d, want 2", count)
			}

			// Zero accounts are deleted.
			if err := db.Apply(8, []Change{{Pubkey: a, Account: &Account{}}}); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if _, err := db.GetAccount(a); !errors.Is(err, ErrAccountNotFound) {
				t.Errorf("Expected ErrAccountNotFound, got %v", err)
			}
			if count, _ := db.AccountsCount(); count != 1 {
				t.Errorf("Count mismatch after delete: got %d, want 1", count)
			}

			got, err := db.GetAccount(b)
			if err != nil {
				t.Fatalf("GetAccount failed: %v", err)
			}
			got.Lamports = 99
			again, _ := db.GetAccount(b)
			if again.Lamports != 20 {
				t.Error("GetAccount should return a copy")
			}
		})
	}
}

func TestIterateAccountsOrdered(t *testing.T) {
	for name, db := range openDBs(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []byte{9, 3, 6} {
				if err := db.SetAccount(types.Pubkey{k}, &Account{Lamports: uint64(k)}); err != nil {
					t.Fatalf("SetAccount failed: %v", err)
				}
			}

			var seen []byte
			err := db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
				seen = append(seen, pubkey[0])
				return nil
			})
			if err != nil {
				t.Fatalf("IterateAccounts failed: %v", err)
			}
			if !bytes.Equal(seen, []byte{3, 6, 9}) {
				t.Errorf("Order mismatch: got %v", seen)
			}
		})
	}
}

func TestAccountsHash(t *testing.T) {
	db := NewMemoryDB()
	empty, err := ComputeAccountsHash(db)
	if err != nil {
		t.Fatalf("ComputeAccountsHash failed: %v", err)
	}
	if !empty.IsZero() {
		t.Error("Empty ledger should hash to zero")
	}

	db.SetAccount(types.Pubkey{1}, &Account{Lamports: 1})
	first, _ := ComputeAccountsHash(db)
	db.SetAccount(types.Pubkey{1}, &Account{Lamports: 2})
	second, _ := ComputeAccountsHash(db)
	if first == second {
		t.Error("Hash should change with lamports")
	}

	if ComputeAccountHash(types.Pubkey{1}, &Account{}) == ComputeAccountHash(types.Pubkey{2}, &Account{}) {
		t.Error("Account hash should cover the address")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewMemoryDB()
	src.Apply(42, []Change{
		{Pubkey: types.Pubkey{1}, Account: &Account{Lamports: 5, Data: bytes.Repeat([]byte{7}, 5000)}},
		{Pubkey: types.Pubkey{2}, Account: &Account{Lamports: 6, Owner: types.MetadataProgramAddr}},
	})

	path := filepath.Join(t.TempDir(), "ledger.snap")
	header, err := ExportSnapshot(src, path)
	if err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}
	if header.Slot != 42 || header.AccountsCount != 2 {
		t.Errorf("Header mismatch: %+v", header)
	}

	onDisk, err := ReadSnapshotHeader(path)
	if err != nil {
		t.Fatalf("ReadSnapshotHeader failed: %v", err)
	}
	if *onDisk != *header {
		t.Errorf("Header on disk mismatch: got %+v, want %+v", onDisk, header)
	}

	for name, dst := range openDBs(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := ImportSnapshot(dst, path); err != nil {
				t.Fatalf("ImportSnapshot failed: %v", err)
			}
			if dst.GetSlot() != 42 {
				t.Errorf("Slot mismatch: got %d, want 42", dst.GetSlot())
			}
			acc, err := dst.GetAccount(types.Pubkey{1})
			if err != nil {
				t.Fatalf("GetAccount failed: %v", err)
			}
			if len(acc.Data) != 5000 || acc.Data[4999] != 7 {
				t.Error("Imported data mismatch")
			}
		})
	}
}
