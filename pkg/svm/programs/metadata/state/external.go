package state

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// ExternalDataLen is the encoded size of an ExternalData record.
const ExternalDataLen = 40

// ExternalData points a metadata record at bytes stored in another account.
type ExternalData struct {
	Address types.Pubkey
	Offset  uint32

	// Length of the referenced region. Zero means up to the end of the
	// account.
	Length uint32
}

// Encode serializes the reference.
func (e *ExternalData) Encode() []byte {
	data := make([]byte, ExternalDataLen)
	copy(data[0:32], e.Address[:])
	binary.LittleEndian.PutUint32(data[32:36], e.Offset)
	binary.LittleEndian.PutUint32(data[36:40], e.Length)
	return data
}

// DecodeExternalData parses an ExternalData payload.
func DecodeExternalData(data []byte) (*ExternalData, error) {
	if len(data) != ExternalDataLen {
		return nil, fmt.Errorf("%w: external data is %d bytes, want %d", svm.ErrInvalidAccountData, len(data), ExternalDataLen)
	}
	e := &ExternalData{
		Offset: binary.LittleEndian.Uint32(data[32:36]),
		Length: binary.LittleEndian.Uint32(data[36:40]),
	}
	copy(e.Address[:], data[0:32])
	return e, nil
}

// Slice returns the referenced region of the target account's data.
func (e *ExternalData) Slice(target []byte) ([]byte, error) {
	start := uint64(e.Offset)
	end := uint64(len(target))
	if e.Length != 0 {
		end = start + uint64(e.Length)
	}
	if start > uint64(len(target)) || end > uint64(len(target)) || start > end {
		return nil, fmt.Errorf("%w: region [%d, %d) outside %d-byte account", svm.ErrInvalidArgument, start, end, len(target))
	}
	return target[start:end], nil
}
