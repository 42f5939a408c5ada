package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
	"github.com/fortiblox/x1-metadata/pkg/svm/programs/metadata/state"
)

// processSetData updates the format fields of a record and, when a data
// source is given, replaces its payload from inline data or a buffer. A
// consumed buffer is closed into the record.
func processSetData(ctx svm.InvokeContext, inst *SetDataInstruction) error {
	accs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	metadata, authority := accs[0], accs[1]
	buffer, err := optionalAccount(ctx, 2)
	if err != nil {
		return err
	}
	program, err := optionalAccount(ctx, 3)
	if err != nil {
		return err
	}
	programData, err := optionalAccount(ctx, 4)
	if err != nil {
		return err
	}

	header, err := loadMetadata(metadata)
	if err != nil {
		return err
	}
	if !header.Mutable {
		return ErrImmutableMetadata
	}
	if err := verifyRecord(ctx, metadata.Key, header.PDAInfo()); err != nil {
		return err
	}
	if err := authorize(header.PDAInfo(), authority, program, programData); err != nil {
		return err
	}
	if err := validateFormat(inst.Encoding, inst.Compression, inst.Format); err != nil {
		return err
	}

	header.Encoding = inst.Encoding
	header.Compression = inst.Compression
	header.Format = inst.Format

	if inst.DataSource == nil {
		if buffer != nil {
			return fmt.Errorf("%w: buffer supplied without a data source", svm.ErrInvalidInstructionData)
		}
		return header.Encode(metadata.Data)
	}

	if (len(inst.Data) > 0) == (buffer != nil) {
		return fmt.Errorf("%w: supply either inline data or a buffer", svm.ErrInvalidInstructionData)
	}
	data := inst.Data
	if buffer != nil {
		if buffer.Key == metadata.Key {
			return fmt.Errorf("%w: buffer is the metadata account", svm.ErrInvalidArgument)
		}
		staged, err := loadBuffer(buffer)
		if err != nil {
			return err
		}
		if err := verifyRecord(ctx, buffer.Key, staged.PDAInfo()); err != nil {
			return err
		}
		if err := authorizeBuffer(staged, buffer, authority, program, programData); err != nil {
			return err
		}
		data = append([]byte(nil), state.BufferPayload(buffer.Data)...)
	}
	if err := inst.DataSource.ValidateLength(len(data)); err != nil {
		return err
	}
	if err := chargeCopy(ctx, len(data)); err != nil {
		return err
	}

	if err := metadata.Resize(state.HeaderLen + len(data)); err != nil {
		return err
	}
	copy(metadata.Data[state.HeaderLen:], data)
	header.DataSource = *inst.DataSource
	header.DataLength = uint32(len(data))

	if buffer != nil {
		if err := consumeBuffer(buffer, metadata); err != nil {
			return err
		}
	}
	return header.Encode(metadata.Data)
}
