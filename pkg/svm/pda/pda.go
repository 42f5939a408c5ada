// Package pda derives program addresses: 32-byte keys that are a hash of
// seeds and a program id and are guaranteed to have no private key.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/jdgcs/ed25519/edwards25519"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// PDA constants.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// PDA marker used in address derivation.
var pdaMarker = []byte("ProgramDerivedAddress")

// PDA errors.
var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrOnCurve               = fmt.Errorf("%w: derived address is on curve", svm.ErrInvalidSeeds)
	ErrNoViableBump          = fmt.Errorf("%w: unable to find a viable program address bump seed", svm.ErrInvalidSeeds)
)

// Meter charges compute units for each derivation attempt. svm.InvokeContext
// satisfies it.
type Meter interface {
	ConsumeCompute(units uint64) error
}

// CreateProgramAddress derives a program address from seeds and a program id.
// Returns ErrOnCurve if the hash is a valid ed25519 point.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	var addr types.Pubkey
	if len(seeds) > MaxSeeds {
		return addr, ErrMaxSeedsExceeded
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return addr, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr) {
		return types.Pubkey{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// address off the curve. meter may be nil.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey, meter Meter) (types.Pubkey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return types.Pubkey{}, 0, ErrMaxSeedsExceeded
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		if meter != nil {
			if err := meter.ConsumeCompute(svm.CUFindProgramAddress); err != nil {
				return types.Pubkey{}, 0, err
			}
		}

		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return types.Pubkey{}, 0, err
		}
	}

	return types.Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether p decodes as an ed25519 point.
func IsOnCurve(p types.Pubkey) bool {
	var point edwards25519.ExtendedGroupElement
	b := [32]byte(p)
	return point.FromBytes(&b)
}
