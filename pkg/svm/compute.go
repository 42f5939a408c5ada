package svm

import (
	"errors"
	"fmt"
)

// Compute unit prices.
const (
	CUDefault = uint64(200_000)
	CUMax     = uint64(1_400_000)

	CUInvokeBase           = uint64(1_000) // per cross-program invocation
	CUSignatureVerify      = uint64(720)   // per transaction signature
	CUCreateProgramAddress = uint64(1_500) // per signer seed set in Invoke
	CUFindProgramAddress   = uint64(1_500) // per bump tried
	CUSystemProgramDefault = uint64(150)
	CUMetadataDefault      = uint64(1_000)
	CUMetadataPerKiB       = uint64(16) // per KiB of account data copied
)

// CPIDepthMax is the deepest cross-program invocation allowed. The
// top-level instruction is depth 1.
const CPIDepthMax = 4

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute budget exceeded")

	// ErrCallDepth is returned when cross-program invocation nests too deep.
	ErrCallDepth = errors.New("cross-program invocation call depth too deep")
)

// ComputeMeter is the compute budget of one transaction. It is not safe for
// concurrent use; the runtime executes a transaction on one goroutine.
type ComputeMeter struct {
	limit    uint64
	consumed uint64
}

// NewComputeMeter returns a meter holding limit units, clamped to CUMax.
func NewComputeMeter(limit uint64) *ComputeMeter {
	return &ComputeMeter{limit: min(limit, CUMax)}
}

// Consume charges cost units. A charge larger than what is left drains the
// meter and fails.
func (cm *ComputeMeter) Consume(cost uint64) error {
	left := cm.Remaining()
	if cost > left {
		cm.consumed = cm.limit
		return fmt.Errorf("%w: need %d units, %d left of %d", ErrComputeExceeded, cost, left, cm.limit)
	}
	cm.consumed += cost
	return nil
}

// ConsumeCompute lets a bare meter stand in where a program context is
// expected, as in address derivation outside the runtime.
func (cm *ComputeMeter) ConsumeCompute(units uint64) error {
	return cm.Consume(units)
}

func (cm *ComputeMeter) Remaining() uint64 { return cm.limit - cm.consumed }
func (cm *ComputeMeter) Consumed() uint64  { return cm.consumed }
func (cm *ComputeMeter) Limit() uint64     { return cm.limit }
