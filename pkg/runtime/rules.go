package runtime

import (
	"fmt"
	"math/bits"

	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// lamportSum is a 128-bit balance total.
type lamportSum struct {
	hi, lo uint64
}

func (s *lamportSum) add(v uint64) {
	var carry uint64
	s.lo, carry = bits.Add64(s.lo, v, 0)
	s.hi += carry
}

func sumLamports(infos []*svm.AccountInfo) lamportSum {
	var s lamportSum
	for _, acc := range infos {
		s.add(acc.Lamports)
	}
	return s
}

// checkInstruction verifies that a top-level instruction neither created
// nor destroyed lamports.
func (e *Executor) checkInstruction(start []*svm.AccountInfo, accts *txAccounts) error {
	before, after := sumLamports(start), sumLamports(accts.infos)
	if before != after {
		return fmt.Errorf("%w: %d:%d before, %d:%d after",
			ErrUnbalancedInstruction, before.hi, before.lo, after.hi, after.lo)
	}
	return nil
}

// checkRent requires every account the transaction touched to be either
// empty or rent exempt.
func (e *Executor) checkRent(accts *txAccounts) error {
	for i, acc := range accts.infos {
		if acc.StateEqual(accts.loaded[i]) {
			continue
		}
		if acc.Lamports == 0 && acc.DataIsEmpty() {
			continue
		}
		if !e.config.Rent.IsExempt(acc.Lamports, acc.DataLen()) {
			return fmt.Errorf("%w: %s holds %d lamports for %d bytes, needs %d",
				svm.ErrAccountNotRentExempt, acc.Key, acc.Lamports, acc.DataLen(),
				e.config.Rent.MinimumBalance(acc.DataLen()))
		}
	}
	return nil
}
