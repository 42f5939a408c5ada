package metadata

import (
	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// processWrite copies bytes into a buffer payload, growing the account when
// the write ends past it.
func processWrite(ctx svm.InvokeContext, inst *WriteInstruction) error {
	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	buffer, authority := accs[0], accs[1]

	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	header, err := loadBuffer(buffer)
	if err != nil {
		return err
	}
	if header.Authority == nil || *header.Authority != authority.Key {
		return svm.ErrIncorrectAuthority
	}
	if err := verifyRecord(ctx, buffer.Key, header.PDAInfo()); err != nil {
		return err
	}
	if err := chargeCopy(ctx, len(inst.Data)); err != nil {
		return err
	}

	start := uint64(state.HeaderLen) + uint64(inst.Offset)
	end := start + uint64(len(inst.Data))
	if end > svm.MaxAccountDataSize {
		return svm.ErrInvalidRealloc
	}
	if int(end) > buffer.DataLen() {
		if err := buffer.Resize(int(end)); err != nil {
			return err
		}
	}
	copy(buffer.Data[start:end], inst.Data)
	return nil
}
