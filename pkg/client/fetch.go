package client

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/content"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// Record is a decoded metadata account.
type Record struct {
	Address  types.Pubkey
	Header   *state.Metadata
	Payload  []byte
	Lamports uint64
}

// FetchMetadata loads and decodes the metadata record at address.
func FetchMetadata(db accounts.DB, address types.Pubkey) (*Record, error) {
	acc, err := loadOwned(db, address)
	if err != nil {
		return nil, err
	}
	header, err := state.DecodeMetadata(acc.Data)
	if err != nil {
		return nil, err
	}
	return &Record{
		Address:  address,
		Header:   header,
		Payload:  header.Payload(acc.Data),
		Lamports: acc.Lamports,
	}, nil
}

// Content unpacks the record payload to text. External payloads are read
// from the referenced account in db. Url payloads return the url itself.
func (r *Record) Content(db accounts.DB) (string, error) {
	data := r.Payload
	if r.Header.DataSource == state.DataSourceExternal {
		ref, err := state.DecodeExternalData(r.Payload)
		if err != nil {
			return "", err
		}
		target, err := db.GetAccount(ref.Address)
		if err != nil {
			return "", fmt.Errorf("load external account %s: %w", ref.Address, err)
		}
		if data, err = ref.Slice(target.Data); err != nil {
			return "", err
		}
	}
	return content.Unpack(data, r.Header.Encoding, r.Header.Compression)
}

// FetchBuffer loads the buffer at address and returns its header and payload.
func FetchBuffer(db accounts.DB, address types.Pubkey) (*state.Buffer, []byte, error) {
	acc, err := loadOwned(db, address)
	if err != nil {
		return nil, nil, err
	}
	header, err := state.DecodeBuffer(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return header, state.BufferPayload(acc.Data), nil
}

func loadOwned(db accounts.DB, address types.Pubkey) (*accounts.Account, error) {
	acc, err := db.GetAccount(address)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", address, err)
	}
	if acc.Owner != metadata.ProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %s", svm.ErrInvalidAccountOwner, address, acc.Owner)
	}
	return acc, nil
}
