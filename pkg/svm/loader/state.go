// Package loader reads and writes the upgradeable loader records that name a
// program's upgrade authority.
//
// Account layout (Program, 36 bytes):
//
//	[0..4)   state tag = 2
//	[4..36)  program data address
//
// Account layout (ProgramData header, 45 bytes):
//
//	[0..4)   state tag = 3
//	[4..12)  last deploy slot
//	[12]     has upgrade authority
//	[13..45) upgrade authority
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/pda"
)

// Size constants for loader account records.
const (
	ProgramAccountSize      = 36
	ProgramDataMetadataSize = 45
)

// StateType is the upgradeable loader state tag.
type StateType uint32

const (
	StateUninitialized StateType = 0
	StateBuffer        StateType = 1
	StateProgram       StateType = 2
	StateProgramData   StateType = 3
)

// String returns the string representation of the state type.
func (s StateType) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBuffer:
		return "Buffer"
	case StateProgram:
		return "Program"
	case StateProgramData:
		return "ProgramData"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(s))
	}
}

// ErrUnexpectedState is returned when a loader record carries the wrong tag.
var ErrUnexpectedState = errors.New("unexpected loader state")

// ProgramState is the record stored in an upgradeable program account.
type ProgramState struct {
	ProgramDataAddress types.Pubkey
}

// ProgramDataState is the header of a program data account.
type ProgramDataState struct {
	Slot             uint64
	UpgradeAuthority *types.Pubkey
}

func stateOf(data []byte) (StateType, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: loader record is %d bytes", svm.ErrInvalidAccountData, len(data))
	}
	return StateType(binary.LittleEndian.Uint32(data[0:4])), nil
}

// DecodeProgram reads a Program record.
func DecodeProgram(data []byte) (*ProgramState, error) {
	tag, err := stateOf(data)
	if err != nil {
		return nil, err
	}
	if tag != StateProgram {
		return nil, fmt.Errorf("%w: %w: want Program, got %s", svm.ErrInvalidAccountData, ErrUnexpectedState, tag)
	}
	if len(data) < ProgramAccountSize {
		return nil, fmt.Errorf("%w: program record too short", svm.ErrInvalidAccountData)
	}
	state := &ProgramState{}
	copy(state.ProgramDataAddress[:], data[4:36])
	return state, nil
}

// DecodeProgramData reads a ProgramData header.
func DecodeProgramData(data []byte) (*ProgramDataState, error) {
	tag, err := stateOf(data)
	if err != nil {
		return nil, err
	}
	if tag != StateProgramData {
		return nil, fmt.Errorf("%w: %w: want ProgramData, got %s", svm.ErrInvalidAccountData, ErrUnexpectedState, tag)
	}
	if len(data) < ProgramDataMetadataSize {
		return nil, fmt.Errorf("%w: program data record too short", svm.ErrInvalidAccountData)
	}
	state := &ProgramDataState{Slot: binary.LittleEndian.Uint64(data[4:12])}
	if data[12] == 1 {
		var authority types.Pubkey
		copy(authority[:], data[13:45])
		state.UpgradeAuthority = &authority
	}
	return state, nil
}

// Encode serializes the Program record.
func (s *ProgramState) Encode() []byte {
	data := make([]byte, ProgramAccountSize)
	binary.LittleEndian.PutUint32(data[0:4], uint32(StateProgram))
	copy(data[4:36], s.ProgramDataAddress[:])
	return data
}

// Encode serializes the ProgramData header followed by the program bytes.
func (s *ProgramDataState) Encode(code []byte) []byte {
	data := make([]byte, ProgramDataMetadataSize+len(code))
	binary.LittleEndian.PutUint32(data[0:4], uint32(StateProgramData))
	binary.LittleEndian.PutUint64(data[4:12], s.Slot)
	if s.UpgradeAuthority != nil {
		data[12] = 1
		copy(data[13:45], s.UpgradeAuthority[:])
	}
	copy(data[ProgramDataMetadataSize:], code)
	return data
}

// ProgramDataAddress derives the program data address for a program.
func ProgramDataAddress(programID types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress([][]byte{programID[:]}, types.BPFLoaderUpgradeableAddr, nil)
}
