package pda

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

func TestFindProgramAddress(t *testing.T) {
	seeds := [][]byte{types.SystemProgramAddr[:], []byte("idl")}

	addr, bump, err := FindProgramAddress(seeds, types.MetadataProgramAddr, nil)
	if err != nil {
		t.Fatalf("Failed to find program address: %v", err)
	}
	if IsOnCurve(addr) {
		t.Error("Derived address should be off curve")
	}

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), types.MetadataProgramAddr)
	if err != nil {
		t.Fatalf("Failed to recreate address with bump %d: %v", bump, err)
	}
	if again != addr {
		t.Errorf("Address mismatch: got %s, want %s", again, addr)
	}

	other, _, err := FindProgramAddress([][]byte{types.SystemProgramAddr[:], []byte("idm")}, types.MetadataProgramAddr, nil)
	if err != nil {
		t.Fatalf("Failed to find program address: %v", err)
	}
	if other == addr {
		t.Error("Different seeds should derive different addresses")
	}
}

func TestPublicKeysAreOnCurve(t *testing.T) {
	for i := byte(1); i < 8; i++ {
		kp := types.KeypairFromSeed([32]byte{i})
		if !IsOnCurve(kp.Pubkey()) {
			t.Errorf("Public key %s should be on curve", kp.Pubkey())
		}
	}
}

func TestSeedLimits(t *testing.T) {
	long := make([]byte, MaxSeedLen+1)
	if _, err := CreateProgramAddress([][]byte{long}, types.MetadataProgramAddr); err != ErrMaxSeedLengthExceeded {
		t.Errorf("Expected ErrMaxSeedLengthExceeded, got %v", err)
	}

	many := make([][]byte, MaxSeeds+1)
	if _, err := CreateProgramAddress(many, types.MetadataProgramAddr); err != ErrMaxSeedsExceeded {
		t.Errorf("Expected ErrMaxSeedsExceeded, got %v", err)
	}
	if _, _, err := FindProgramAddress(many[:MaxSeeds], types.MetadataProgramAddr, nil); err != ErrMaxSeedsExceeded {
		t.Errorf("Expected ErrMaxSeedsExceeded, got %v", err)
	}
}

type countingMeter struct {
	calls int
	limit int
}

func (m *countingMeter) ConsumeCompute(units uint64) error {
	m.calls++
	if m.calls > m.limit {
		return svm.ErrComputeExceeded
	}
	return nil
}

func TestFindProgramAddressMetered(t *testing.T) {
	seeds := [][]byte{[]byte("metered")}
	meter := &countingMeter{limit: 256}
	_, bump, err := FindProgramAddress(seeds, types.MetadataProgramAddr, meter)
	if err != nil {
		t.Fatalf("Failed to find program address: %v", err)
	}
	if meter.calls != 256-int(bump) {
		t.Errorf("Meter calls mismatch: got %d, want %d", meter.calls, 256-int(bump))
	}

	if _, _, err := FindProgramAddress(seeds, types.MetadataProgramAddr, &countingMeter{}); !errors.Is(err, svm.ErrComputeExceeded) {
		t.Errorf("Expected ErrComputeExceeded, got %v", err)
	}
}
