// Package journal keeps a durable record of every transaction the local
// ledger processed, successful or not.
//
// Entries are stored in a BoltDB file, gob encoded, keyed by a sequence
// number. A second bucket indexes entries by every account the transaction
// referenced so the history of a metadata record or buffer can be listed
// without scanning the whole journal.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fortiblox/x1-metadata/internal/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrEntryNotFound is returned when a sequence number has no entry.
	ErrEntryNotFound = errors.New("journal entry not found")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")
)

// Bucket names.
var (
	// bucketEntries stores gob entries keyed by big-endian sequence.
	bucketEntries = []byte("entries")

	// bucketByAccount stores empty values keyed by pubkey + sequence.
	bucketByAccount = []byte("by_account")

	bucketMeta = []byte("meta")
)

var keyLatest = []byte("latest")

// Config holds journal configuration.
type Config struct {
	// Path is the BoltDB file.
	Path string

	// NoSync disables fsync after each append.
	NoSync bool

	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration

	ReadOnly bool
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:    path,
		Timeout: 5 * time.Second,
	}
}

// InstructionRecord summarizes one top-level instruction.
type InstructionRecord struct {
	ProgramID types.Pubkey

	// Opcode is the first data byte, or 0 for empty data.
	Opcode  uint8
	DataLen int
}

// Entry is one processed transaction.
type Entry struct {
	Sequence     uint64
	Signature    types.Signature
	Slot         uint64
	Time         time.Time
	Success      bool
	Err          string
	Instructions []InstructionRecord
	Accounts     []types.Pubkey
	Modified     []types.Pubkey
	Logs         []string
	ComputeUnits uint64
}

// Journal is a BoltDB-backed transaction journal.
type Journal struct {
	db *bolt.DB

	mu     sync.RWMutex
	latest uint64
	closed bool
}

// Open creates or opens the journal at cfg.Path.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{
		Timeout:  cfg.Timeout,
		NoSync:   cfg.NoSync,
		ReadOnly: cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}
	if !cfg.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketEntries, bucketByAccount, bucketMeta} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("create bucket %s: %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	err = db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if v := meta.Get(keyLatest); v != nil {
				j.latest = decodeSeq(v)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func encodeSeq(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func decodeSeq(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// accountKey is pubkey (32) + sequence (8, big-endian).
func accountKey(pubkey types.Pubkey, seq uint64) []byte {
	key := make([]byte, 0, types.PubkeySize+8)
	key = append(key, pubkey[:]...)
	return append(key, encodeSeq(seq)...)
}

// Append stores e, assigns its sequence number and returns it.
func (j *Journal) Append(e *Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		next, err := entries.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		e.Sequence = seq

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(e); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		if err := entries.Put(encodeSeq(seq), buf.Bytes()); err != nil {
			return err
		}

		byAccount := tx.Bucket(bucketByAccount)
		for _, key := range e.Accounts {
			if err := byAccount.Put(accountKey(key, seq), nil); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyLatest, encodeSeq(seq))
	})
	if err != nil {
		return 0, err
	}
	j.latest = seq
	return seq, nil
}

// Get returns the entry with sequence seq.
func (j *Journal) Get(seq uint64) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var entry *Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		var err error
		entry, err = getEntry(tx, seq)
		return err
	})
	return entry, err
}

func getEntry(tx *bolt.Tx, seq uint64) (*Entry, error) {
	b := tx.Bucket(bucketEntries)
	if b == nil {
		return nil, ErrEntryNotFound
	}
	data := b.Get(encodeSeq(seq))
	if data == nil {
		return nil, fmt.Errorf("%w: %d", ErrEntryNotFound, seq)
	}
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode entry %d: %w", seq, err)
	}
	return &e, nil
}

// ByAccount returns up to limit entries that referenced pubkey, newest
// first. A limit of 0 returns all of them.
func (j *Journal) ByAccount(pubkey types.Pubkey, limit int) ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var out []*Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketByAccount)
		if b == nil {
			return nil
		}
		c := b.Cursor()

		prefix := pubkey[:]
		seek := accountKey(pubkey, math.MaxUint64)
		k, _ := c.Seek(seek)
		if k == nil {
			k, _ = c.Last()
		} else if !bytes.Equal(k, seek) {
			k, _ = c.Prev()
		}

		for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
			e, err := getEntry(tx, decodeSeq(k[types.PubkeySize:]))
			if err != nil {
				return err
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Latest returns the sequence number of the newest entry, 0 when empty.
func (j *Journal) Latest() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}

// Close closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.closed = true
	return j.db.Close()
}
