package accounts

import (
	"encoding/binary"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/zeebo/blake3"
)

// ComputeAccountHash hashes every field of an account together with its
// address:
//
//	blake3(lamports || rent_epoch || data || executable || owner || pubkey)
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	var num [8]byte
	h := blake3.New()

	binary.LittleEndian.PutUint64(num[:], account.Lamports)
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], account.RentEpoch)
	h.Write(num[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeAccountsHash returns the Merkle root of all account hashes in key
// order. An empty ledger hashes to the zero hash.
func ComputeAccountsHash(db DB) (types.Hash, error) {
	var hashes []types.Hash
	err := db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot computes a binary Merkle root.
//
//   - Leaf: blake3(0x00 || hash)
//   - Node: blake3(0x01 || left || right)
//   - An unpaired node is paired with the zero hash.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = blake3.Sum256(append([]byte{0x00}, h[:]...))
	}

	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			buf := make([]byte, 0, 1+2*types.HashSize)
			buf = append(buf, 0x01)
			buf = append(buf, level[i][:]...)
			buf = append(buf, right[:]...)
			next[i/2] = blake3.Sum256(buf)
		}
		level = next
	}
	return level[0]
}
