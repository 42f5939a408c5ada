package svm

import (
	"errors"
	"math"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
)

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()

	tests := []struct {
		dataLen int
		want    uint64
	}{
		{0, 890_880},
		{96, 1_559_040},
		{165, 2_039_280},
	}
	for _, tt := range tests {
		if got := rent.MinimumBalance(tt.dataLen); got != tt.want {
			t.Errorf("MinimumBalance(%d): got %d, want %d", tt.dataLen, got, tt.want)
		}
	}

	if !rent.IsExempt(890_880, 0) {
		t.Error("Exact minimum should be exempt")
	}
	if rent.IsExempt(890_879, 0) {
		t.Error("One lamport short should not be exempt")
	}
}

func TestRentEncoding(t *testing.T) {
	rent := Rent{LamportsPerByteYear: 10, ExemptionThreshold: 1.5, BurnPercent: 7}
	data := rent.Encode()
	if len(data) != RentSize {
		t.Fatalf("Encoded size mismatch: got %d, want %d", len(data), RentSize)
	}

	decoded, err := DecodeRent(data)
	if err != nil {
		t.Fatalf("Failed to decode rent: %v", err)
	}
	if decoded != rent {
		t.Errorf("Rent mismatch: got %+v, want %+v", decoded, rent)
	}

	if _, err := DecodeRent(data[:8]); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData, got %v", err)
	}
}

func TestAccountResize(t *testing.T) {
	acc := &AccountInfo{Data: []byte{1, 2, 3, 4}}

	if err := acc.Resize(2); err != nil {
		t.Fatalf("Failed to shrink: %v", err)
	}
	if err := acc.Resize(4); err != nil {
		t.Fatalf("Failed to grow: %v", err)
	}
	want := []byte{1, 2, 0, 0}
	for i := range want {
		if acc.Data[i] != want[i] {
			t.Fatalf("Data mismatch after regrow: got %v, want %v", acc.Data, want)
		}
	}

	if err := acc.Resize(MaxAccountDataSize + 1); !errors.Is(err, ErrInvalidRealloc) {
		t.Errorf("Expected ErrInvalidRealloc, got %v", err)
	}
}

func TestAccountClose(t *testing.T) {
	acc := &AccountInfo{
		Owner:    types.MetadataProgramAddr,
		Lamports: 5,
		Data:     []byte{1},
	}
	acc.Close()
	if acc.Lamports != 0 || !acc.DataIsEmpty() || acc.Owner != types.SystemProgramAddr {
		t.Errorf("Account not closed: %+v", acc)
	}
}

func TestMoveLamports(t *testing.T) {
	src := &AccountInfo{Lamports: 100}
	dst := &AccountInfo{Lamports: 1}

	if err := MoveLamports(src, dst, 40); err != nil {
		t.Fatalf("Failed to move lamports: %v", err)
	}
	if src.Lamports != 60 || dst.Lamports != 41 {
		t.Errorf("Balances mismatch: got %d/%d, want 60/41", src.Lamports, dst.Lamports)
	}

	if err := MoveLamports(src, dst, 61); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}

	full := &AccountInfo{Lamports: math.MaxUint64}
	if err := MoveLamports(src, full, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("Expected ErrArithmeticOverflow, got %v", err)
	}

	if err := MoveLamports(src, src, 10); err != nil || src.Lamports != 60 {
		t.Errorf("Self transfer should be a no-op: err=%v lamports=%d", err, src.Lamports)
	}
}

func TestComputeMeter(t *testing.T) {
	cm := NewComputeMeter(1000)

	if err := cm.Consume(400); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if cm.Remaining() != 600 {
		t.Errorf("Remaining mismatch: got %d, want 600", cm.Remaining())
	}
	if err := cm.Consume(601); !errors.Is(err, ErrComputeExceeded) {
		t.Errorf("Expected ErrComputeExceeded, got %v", err)
	}
	if cm.Remaining() != 0 || cm.Consumed() != 1000 {
		t.Errorf("Meter after exhaustion: remaining=%d consumed=%d", cm.Remaining(), cm.Consumed())
	}

	if NewComputeMeter(CUMax+1).Limit() != CUMax {
		t.Error("Limit should be clamped to CUMax")
	}

	var ctx interface{ ConsumeCompute(uint64) error } = NewComputeMeter(10)
	if err := ctx.ConsumeCompute(10); err != nil {
		t.Errorf("ConsumeCompute failed: %v", err)
	}
}
