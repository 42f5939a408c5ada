package runtime

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/pda"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/system"
)

// frame is the invoke context of one program invocation, top level or CPI.
type frame struct {
	executor  *Executor
	accts     *txAccounts
	programID types.Pubkey
	accounts  []*svm.AccountInfo
	writable  map[*svm.AccountInfo]bool
	meter     *svm.ComputeMeter
	result    *Result
	depth     int

	// pre is the state the next verify compares against.
	pre []*svm.AccountInfo

	// growth accumulates data growth per transaction account.
	growth map[int]int
}

var _ svm.InvokeContext = (*frame)(nil)

func (f *frame) ProgramID() types.Pubkey {
	return f.programID
}

func (f *frame) AccountCount() int {
	return len(f.accounts)
}

func (f *frame) GetAccount(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(f.accounts) {
		return nil, fmt.Errorf("%w: index %d of %d", svm.ErrNotEnoughAccountKeys, index, len(f.accounts))
	}
	return f.accounts[index], nil
}

func (f *frame) ConsumeCompute(units uint64) error {
	return f.meter.Consume(units)
}

func (f *frame) Rent() svm.Rent {
	return f.executor.config.Rent
}

func (f *frame) Log(msg string) {
	f.result.Logs = append(f.result.Logs, "Program log: "+msg)
}

// Invoke runs ix as a cross-program invocation. Addresses derived from the
// calling program with signerSeeds sign for the duration of the call.
func (f *frame) Invoke(ix svm.Instruction, signerSeeds ...[][]byte) error {
	if f.depth+1 > svm.CPIDepthMax {
		return fmt.Errorf("%w: depth %d", svm.ErrCallDepth, f.depth+1)
	}
	if err := f.meter.Consume(svm.CUInvokeBase); err != nil {
		return err
	}

	program, ok := f.executor.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", svm.ErrUnsupportedProgram, ix.ProgramID)
	}
	if _, ok := f.accts.byKey[ix.ProgramID]; !ok {
		return fmt.Errorf("%w: program %s not in transaction", svm.ErrNotEnoughAccountKeys, ix.ProgramID)
	}

	// Changes made so far belong to the caller.
	if err := f.verify(); err != nil {
		return err
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		if err := f.meter.Consume(svm.CUCreateProgramAddress); err != nil {
			return err
		}
		addr, err := pda.CreateProgramAddress(seeds, f.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", svm.ErrInvalidSeeds, err)
		}
		pdaSigners[addr] = true
	}

	list := make([]*svm.AccountInfo, len(ix.Accounts))
	writable := make(map[*svm.AccountInfo]bool, len(ix.Accounts))
	var promoted []*svm.AccountInfo
	defer func() {
		for _, acc := range promoted {
			acc.IsSigner = false
		}
	}()
	for i, meta := range ix.Accounts {
		acc, ok := f.accts.byKey[meta.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s not in transaction", svm.ErrNotEnoughAccountKeys, meta.Pubkey)
		}
		if meta.IsWritable {
			if !f.writable[acc] {
				return fmt.Errorf("%w: %s escalated to writable", svm.ErrAccountNotWritable, meta.Pubkey)
			}
			writable[acc] = true
		}
		if meta.IsSigner && !acc.IsSigner {
			if !pdaSigners[meta.Pubkey] {
				return fmt.Errorf("%w: %s escalated to signer", svm.ErrMissingRequiredSignature, meta.Pubkey)
			}
			acc.IsSigner = true
			promoted = append(promoted, acc)
		}
		list[i] = acc
	}

	callee := &frame{
		executor:  f.executor,
		accts:     f.accts,
		programID: ix.ProgramID,
		accounts:  list,
		writable:  writable,
		meter:     f.meter,
		result:    f.result,
		depth:     f.depth + 1,
		pre:       snapshot(f.accts),
	}
	if err := program.Process(callee, ix.Data); err != nil {
		return err
	}
	if err := callee.verify(); err != nil {
		return err
	}

	f.pre = snapshot(f.accts)
	return nil
}

// verify checks the changes made since the last verify against the host
// rules and starts a new comparison point.
func (f *frame) verify() error {
	limits := f.executor.config
	for i, acc := range f.accts.infos {
		pre := f.pre[i]
		if acc.StateEqual(pre) {
			continue
		}
		if pre.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, acc.Key)
		}
		if acc.Executable {
			return fmt.Errorf("%w: %s marked executable", ErrExecutableModified, acc.Key)
		}
		if !f.writable[acc] {
			return fmt.Errorf("%w: %s", svm.ErrAccountNotWritable, acc.Key)
		}

		owned := pre.Owner == f.programID
		if acc.Owner != pre.Owner {
			if !owned || !isZeroed(acc.Data) {
				return fmt.Errorf("%w: %s reassigned by %s", svm.ErrInvalidAccountOwner, acc.Key, f.programID)
			}
		}
		if acc.Lamports < pre.Lamports && !owned {
			return fmt.Errorf("%w: %s debited by %s", svm.ErrInvalidAccountOwner, acc.Key, f.programID)
		}
		if !owned && !bytes.Equal(acc.Data, pre.Data) {
			return fmt.Errorf("%w: %s data modified by %s", svm.ErrInvalidAccountOwner, acc.Key, f.programID)
		}

		if len(acc.Data) > limits.MaxAccountDataSize {
			return fmt.Errorf("%w: %s is %d bytes", svm.ErrInvalidRealloc, acc.Key, len(acc.Data))
		}
		// The system program sizes accounts on behalf of others and is not
		// bound by the per-instruction growth cap.
		if f.programID != system.ProgramID {
			if f.growth == nil {
				f.growth = make(map[int]int)
			}
			f.growth[i] += len(acc.Data) - len(pre.Data)
			if f.growth[i] > limits.MaxPermittedDataIncrease {
				return fmt.Errorf("%w: %s grew by %d bytes", svm.ErrInvalidRealloc, acc.Key, f.growth[i])
			}
		}
	}
	f.pre = snapshot(f.accts)
	return nil
}

func snapshot(accts *txAccounts) []*svm.AccountInfo {
	out := make([]*svm.AccountInfo, len(accts.infos))
	for i, acc := range accts.infos {
		out[i] = acc.Clone()
	}
	return out
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
