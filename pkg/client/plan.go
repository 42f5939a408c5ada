package client

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/runtime"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

// maxExtendsPerTransaction keeps a batch of Extend instructions well inside
// the compute budget.
const maxExtendsPerTransaction = 8

// ErrBufferRequired is returned when an update does not fit in one
// transaction and no staging buffer was supplied.
var ErrBufferRequired = errors.New("payload too large for one transaction: staging buffer required")

// WriteParams describes a payload to publish.
type WriteParams struct {
	Payer     types.Pubkey
	Authority types.Pubkey
	Owner     Owner

	// Canonical selects the canonical record. Authority must then be the
	// program's upgrade authority.
	Canonical bool

	Seed       state.Seed
	Format     Format
	DataSource state.DataSource
	Data       []byte
	Rent       svm.Rent

	// Existing is the current record account. Nil creates the record.
	Existing *accounts.Account

	// Buffer is an unused keypair address for staging large updates. It
	// must sign every step that mentions it.
	Buffer *types.Pubkey
}

// Plan is an ordered list of transactions. Each step must commit before the
// next one is sent.
type Plan struct {
	Address types.Pubkey
	Steps   [][]svm.Instruction
}

// PlanWrite returns the transactions that create or update a record so that
// it holds p.Data. Payloads that fit are sent inline; larger ones are staged
// in a buffer with chunked writes first.
func PlanWrite(p WriteParams) (*Plan, error) {
	var delegate *types.Pubkey
	if !p.Canonical {
		delegate = &p.Authority
	}
	address, err := FindMetadataAddress(p.Owner.Program, delegate, p.Seed)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Address: address}

	if p.Existing == nil {
		return plan, plan.create(p)
	}
	return plan, plan.update(p)
}

func (plan *Plan) create(p WriteParams) error {
	size := state.HeaderLen + len(p.Data)
	fund := system.Transfer(p.Payer, plan.Address, p.Rent.MinimumBalance(size))
	init := InitializeParams{
		Metadata:   plan.Address,
		Authority:  p.Authority,
		Owner:      p.Owner,
		Seed:       p.Seed,
		Format:     p.Format,
		DataSource: p.DataSource,
		Data:       p.Data,
	}

	inline := []svm.Instruction{fund, Initialize(init)}
	if fits(p.Payer, inline) {
		plan.Steps = append(plan.Steps, inline)
		return nil
	}

	// Stage the payload in a buffer at the record address and convert it in
	// place.
	seed := p.Seed
	plan.Steps = append(plan.Steps, []svm.Instruction{
		fund,
		Allocate(plan.Address, p.Authority, &p.Owner, &seed),
	})
	if err := plan.writes(p.Payer, plan.Address, p.Authority, p.Data); err != nil {
		return err
	}
	init.Data = nil
	plan.Steps = append(plan.Steps, []svm.Instruction{Initialize(init)})
	return nil
}

func (plan *Plan) update(p WriteParams) error {
	current, err := state.DecodeMetadata(p.Existing.Data)
	if err != nil {
		return err
	}
	if !current.Mutable {
		return fmt.Errorf("%w: record %s is immutable", svm.ErrInvalidAccountData, plan.Address)
	}

	size := state.HeaderLen + len(p.Data)
	need := p.Rent.MinimumBalance(size)
	source := p.DataSource
	set := SetDataParams{
		Metadata:   plan.Address,
		Authority:  p.Authority,
		Owner:      &p.Owner,
		Format:     p.Format,
		DataSource: &source,
		Data:       p.Data,
	}
	trim := Trim(plan.Address, p.Authority, &p.Owner, p.Payer)

	var inline []svm.Instruction
	if p.Existing.Lamports < need {
		inline = append(inline, system.Transfer(p.Payer, plan.Address, need-p.Existing.Lamports))
	}
	inline = append(inline, SetData(set))
	if p.Existing.Lamports > need {
		inline = append(inline, trim)
	}
	if fits(p.Payer, inline) {
		plan.Steps = append(plan.Steps, inline)
		return nil
	}

	if p.Buffer == nil {
		return ErrBufferRequired
	}
	buffer := *p.Buffer
	plan.Steps = append(plan.Steps, []svm.Instruction{
		system.Transfer(p.Payer, buffer, p.Rent.MinimumBalance(size)),
		Allocate(buffer, buffer, nil, nil),
	})
	if err := plan.writes(p.Payer, buffer, buffer, p.Data); err != nil {
		return err
	}

	// Grow the record beforehand so SetData stays within the per-instruction
	// growth limit.
	if grow := size - len(p.Existing.Data); grow > 0 {
		var step []svm.Instruction
		if p.Existing.Lamports < need {
			step = append(step, system.Transfer(p.Payer, plan.Address, need-p.Existing.Lamports))
		}
		extends := 0
		for grow > 0 {
			n := min(grow, svm.MaxPermittedDataIncrease)
			step = append(step, Extend(plan.Address, p.Authority, &p.Owner, uint16(n)))
			grow -= n
			extends++
			if extends == maxExtendsPerTransaction {
				plan.Steps = append(plan.Steps, step)
				step, extends = nil, 0
			}
		}
		if len(step) > 0 {
			plan.Steps = append(plan.Steps, step)
		}
	}

	set.Data = nil
	set.Buffer = &buffer
	set.BufferSigns = true
	plan.Steps = append(plan.Steps, []svm.Instruction{SetData(set), trim})
	return nil
}

// writes appends one Write step per chunk of data.
func (plan *Plan) writes(payer, buffer, authority types.Pubkey, data []byte) error {
	chunk := WriteChunkSize(payer, buffer, authority)
	if chunk <= 0 {
		return fmt.Errorf("no room for write data in a %d-byte transaction", runtime.PacketDataSize)
	}
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		plan.Steps = append(plan.Steps, []svm.Instruction{
			Write(buffer, authority, uint32(off), data[off:end]),
		})
	}
	return nil
}

// WriteChunkSize returns the largest Write payload that fits in one
// transaction, capped at the per-instruction growth limit.
func WriteChunkSize(payer, buffer, authority types.Pubkey) int {
	overhead, ok := transactionSize(payer, []svm.Instruction{Write(buffer, authority, 0, nil)})
	if !ok {
		return 0
	}
	// The data length prefix takes a second byte once it passes 127.
	return min(runtime.PacketDataSize-overhead-1, svm.MaxPermittedDataIncrease)
}

func fits(payer types.Pubkey, ixs []svm.Instruction) bool {
	n, ok := transactionSize(payer, ixs)
	return ok && n <= runtime.PacketDataSize
}

// transactionSize returns the signed wire size of ixs.
func transactionSize(payer types.Pubkey, ixs []svm.Instruction) (int, bool) {
	tx, err := runtime.NewTransaction(payer, ixs, types.Hash{})
	if err != nil {
		return 0, false
	}
	return len(tx.Serialize()), true
}
