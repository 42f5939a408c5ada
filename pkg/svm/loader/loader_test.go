package loader

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

func deployed(t *testing.T, programID types.Pubkey, authority *types.Pubkey) (*svm.AccountInfo, *svm.AccountInfo) {
	t.Helper()
	dataAddr, _, err := ProgramDataAddress(programID)
	if err != nil {
		t.Fatalf("Failed to derive program data address: %v", err)
	}
	program := &svm.AccountInfo{
		Key:        programID,
		Owner:      types.BPFLoaderUpgradeableAddr,
		Data:       (&ProgramState{ProgramDataAddress: dataAddr}).Encode(),
		Executable: true,
	}
	programData := &svm.AccountInfo{
		Key:   dataAddr,
		Owner: types.BPFLoaderUpgradeableAddr,
		Data:  (&ProgramDataState{Slot: 42, UpgradeAuthority: authority}).Encode([]byte{0xde, 0xad}),
	}
	return program, programData
}

func TestRecordLayout(t *testing.T) {
	authority := types.Pubkey{9, 9, 9}
	data := (&ProgramDataState{Slot: 7, UpgradeAuthority: &authority}).Encode(nil)

	if len(data) != ProgramDataMetadataSize {
		t.Fatalf("ProgramData size mismatch: got %d, want %d", len(data), ProgramDataMetadataSize)
	}
	if data[0] != 3 || data[12] != 1 || data[13] != 9 {
		t.Errorf("Unexpected ProgramData bytes: %v", data[:16])
	}

	decoded, err := DecodeProgramData(data)
	if err != nil {
		t.Fatalf("Failed to decode program data: %v", err)
	}
	if decoded.Slot != 7 || decoded.UpgradeAuthority == nil || *decoded.UpgradeAuthority != authority {
		t.Errorf("ProgramData mismatch: got %+v", decoded)
	}

	if _, err := DecodeProgram(data); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData decoding ProgramData as Program, got %v", err)
	}
}

func TestUpgradeAuthority(t *testing.T) {
	programID := types.Pubkey{1, 2, 3}
	authority := types.Pubkey{4, 5, 6}
	program, programData := deployed(t, programID, &authority)

	got, err := UpgradeAuthority(program, programData)
	if err != nil {
		t.Fatalf("UpgradeAuthority failed: %v", err)
	}
	if got == nil || *got != authority {
		t.Errorf("Authority mismatch: got %v, want %s", got, authority)
	}
}

func TestUpgradeAuthorityFrozen(t *testing.T) {
	program, programData := deployed(t, types.Pubkey{1}, nil)

	got, err := UpgradeAuthority(program, programData)
	if err != nil {
		t.Fatalf("UpgradeAuthority failed: %v", err)
	}
	if got != nil {
		t.Errorf("Frozen program should have no authority, got %s", got)
	}
}

func TestUpgradeAuthorityMismatch(t *testing.T) {
	program, programData := deployed(t, types.Pubkey{1}, &types.Pubkey{2})
	programData.Key = types.Pubkey{3}

	if _, err := UpgradeAuthority(program, programData); !errors.Is(err, svm.ErrInvalidAccountData) {
		t.Errorf("Expected ErrInvalidAccountData, got %v", err)
	}

	program, programData = deployed(t, types.Pubkey{1}, &types.Pubkey{2})
	programData.Data[0] = byte(StateBuffer)
	if _, err := UpgradeAuthority(program, programData); !errors.Is(err, ErrUnexpectedState) {
		t.Errorf("Expected ErrUnexpectedState, got %v", err)
	}
}

func TestUpgradeAuthorityOtherLoader(t *testing.T) {
	program := &svm.AccountInfo{
		Key:        types.Pubkey{1},
		Owner:      types.BPFLoader2Addr,
		Executable: true,
	}
	got, err := UpgradeAuthority(program, &svm.AccountInfo{})
	if err != nil || got != nil {
		t.Errorf("Non-upgradeable program: got (%v, %v), want (nil, nil)", got, err)
	}
}
