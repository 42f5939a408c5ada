package accounts

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/klauspost/compress/zstd"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// snapshotMagic identifies a ledger snapshot file.
var snapshotMagic = []byte{'P', 'M', 'S', 'N'}

// snapshotHeaderLen is magic (4) + version (4) + slot (8) + count (8) + hash (32).
const snapshotHeaderLen = 4 + 4 + 8 + 8 + 32

// importBatchSize bounds the changes applied per Apply call on import.
const importBatchSize = 256

// ErrBadSnapshot is returned for files that are not valid snapshots.
var ErrBadSnapshot = errors.New("invalid snapshot")

// SnapshotHeader describes a snapshot file.
type SnapshotHeader struct {
	Version       uint32
	Slot          uint64
	AccountsCount uint64

	// AccountsHash is the Merkle root of the exported accounts.
	AccountsHash types.Hash
}

func (h *SnapshotHeader) encode() []byte {
	buf := make([]byte, snapshotHeaderLen)
	copy(buf, snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.Slot)
	binary.LittleEndian.PutUint64(buf[16:], h.AccountsCount)
	copy(buf[24:], h.AccountsHash[:])
	return buf
}

func decodeSnapshotHeader(buf []byte) (*SnapshotHeader, error) {
	if len(buf) < snapshotHeaderLen || string(buf[:4]) != string(snapshotMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
	}
	h := &SnapshotHeader{
		Version:       binary.LittleEndian.Uint32(buf[4:]),
		Slot:          binary.LittleEndian.Uint64(buf[8:]),
		AccountsCount: binary.LittleEndian.Uint64(buf[16:]),
	}
	copy(h.AccountsHash[:], buf[24:])
	if h.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, h.Version)
	}
	return h, nil
}

// ExportSnapshot writes every account of db to path.
//
// The file is an uncompressed header followed by a zstd stream of
// (pubkey, size u32, serialized account) records in key order.
func ExportSnapshot(db DB, path string) (*SnapshotHeader, error) {
	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, fmt.Errorf("hash accounts: %w", err)
	}
	count, err := db.AccountsCount()
	if err != nil {
		return nil, err
	}
	header := &SnapshotHeader{
		Version:       snapshotVersion,
		Slot:          db.GetSlot(),
		AccountsCount: count,
		AccountsHash:  hash,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(header.encode()); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(enc)

	var written uint64
	err = db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		data := account.Serialize()
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
		if _, err := w.Write(pubkey[:]); err != nil {
			return err
		}
		if _, err := w.Write(size[:]); err != nil {
			return err
		}
		_, err := w.Write(data)
		written++
		return err
	})
	if err != nil {
		enc.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write accounts: %w", err)
	}
	if err := w.Flush(); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	if written != count {
		return nil, fmt.Errorf("%w: counted %d accounts, wrote %d", ErrBadSnapshot, count, written)
	}
	return header, file.Sync()
}

// ImportSnapshot loads the accounts of a snapshot into db and verifies the
// accounts hash. db should be empty.
func ImportSnapshot(db DB, path string) (*SnapshotHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	buf := make([]byte, snapshotHeaderLen)
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrBadSnapshot, err)
	}
	header, err := decodeSnapshotHeader(buf)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	r := bufio.NewReader(dec)

	batch := make([]Change, 0, importBatchSize)
	var read uint64
	for {
		var prefix [types.PubkeySize + 4]byte
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadSnapshot, read, err)
		}
		var pubkey types.Pubkey
		copy(pubkey[:], prefix[:types.PubkeySize])
		size := binary.LittleEndian.Uint32(prefix[types.PubkeySize:])
		if size > maxAccountDataSize+57 {
			return nil, fmt.Errorf("%w: record %d is %d bytes", ErrBadSnapshot, read, size)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadSnapshot, read, err)
		}
		account, err := DeserializeAccount(data)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadSnapshot, read, err)
		}

		batch = append(batch, Change{Pubkey: pubkey, Account: account})
		read++
		if len(batch) == importBatchSize {
			if err := db.Apply(header.Slot, batch); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}
	if err := db.Apply(header.Slot, batch); err != nil {
		return nil, err
	}

	if read != header.AccountsCount {
		return nil, fmt.Errorf("%w: header lists %d accounts, read %d", ErrBadSnapshot, header.AccountsCount, read)
	}
	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, err
	}
	if hash != header.AccountsHash {
		return nil, fmt.Errorf("%w: accounts hash mismatch: got %s, want %s", ErrBadSnapshot, hash, header.AccountsHash)
	}
	return header, nil
}

// ReadSnapshotHeader returns the header of a snapshot file.
func ReadSnapshotHeader(path string) (*SnapshotHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, snapshotHeaderLen)
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrBadSnapshot, err)
	}
	return decodeSnapshotHeader(buf)
}
