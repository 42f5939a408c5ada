package runtime

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Transaction errors.
var (
	// ErrInvalidTransaction is returned for structurally invalid transactions.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrSignatureFailure is returned when a signature does not verify.
	ErrSignatureFailure = errors.New("transaction signature verification failure")

	// ErrMissingSigner is returned when signing without a required keypair.
	ErrMissingSigner = errors.New("missing signer keypair")
)

// MessageHeader describes which account keys sign and which are writable.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction whose program and accounts are
// indexes into the message account keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the signed part of a transaction.
type Message struct {
	Header          MessageHeader
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

// Transaction is a message and one signature per required signer.
type Transaction struct {
	Signatures []types.Signature
	Message    Message
}

// keyFlags accumulates privileges while compiling a message.
type keyFlags struct {
	key      types.Pubkey
	signer   bool
	writable bool
}

// NewTransaction compiles instructions into an unsigned transaction. The
// payer is always the first, writable signer.
func NewTransaction(payer types.Pubkey, instructions []svm.Instruction, blockhash types.Hash) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrInvalidTransaction)
	}

	index := map[types.Pubkey]int{}
	var keys []*keyFlags
	add := func(key types.Pubkey, signer, writable bool) {
		i, ok := index[key]
		if !ok {
			i = len(keys)
			index[key] = i
			keys = append(keys, &keyFlags{key: key})
		}
		keys[i].signer = keys[i].signer || signer
		keys[i].writable = keys[i].writable || writable
	}

	add(payer, true, true)
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}

	// Signers first, writable before read-only within each group.
	var ordered []*keyFlags
	for _, group := range []struct{ signer, writable bool }{
		{true, true}, {true, false}, {false, true}, {false, false},
	} {
		for _, k := range keys {
			if k.signer == group.signer && k.writable == group.writable {
				ordered = append(ordered, k)
			}
		}
	}
	if len(ordered) > 256 {
		return nil, fmt.Errorf("%w: %d account keys", ErrInvalidTransaction, len(ordered))
	}

	msg := Message{RecentBlockhash: blockhash}
	position := make(map[types.Pubkey]uint8, len(ordered))
	for i, k := range ordered {
		position[k.key] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, k.key)
		switch {
		case k.signer && k.writable:
			msg.Header.NumRequiredSignatures++
		case k.signer:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case !k.writable:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: position[ix.ProgramID],
			Data:           append([]byte(nil), ix.Data...),
		}
		for _, meta := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, position[meta.Pubkey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return &Transaction{
		Signatures: make([]types.Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// IsSigner reports whether the key at index must sign.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the key at index is writable.
func (m *Message) IsWritable(index int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if index < numSigners {
		return index < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	numWritableUnsigned := len(m.AccountKeys) - numSigners - int(m.Header.NumReadonlyUnsignedAccounts)
	return index-numSigners < numWritableUnsigned
}

// Serialize encodes the message in the legacy wire format. This is the byte
// string every signer signs.
func (m *Message) Serialize() []byte {
	buf := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}
	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// Sanitize checks the message is internally consistent.
func (m *Message) Sanitize() error {
	n := len(m.AccountKeys)
	h := m.Header
	if int(h.NumRequiredSignatures) > n || h.NumRequiredSignatures == 0 {
		return fmt.Errorf("%w: %d signers for %d keys", ErrInvalidTransaction, h.NumRequiredSignatures, n)
	}
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return fmt.Errorf("%w: fee payer must be writable", ErrInvalidTransaction)
	}
	if int(h.NumReadonlyUnsignedAccounts) > n-int(h.NumRequiredSignatures) {
		return fmt.Errorf("%w: too many read-only accounts", ErrInvalidTransaction)
	}

	seen := make(map[types.Pubkey]struct{}, n)
	for _, k := range m.AccountKeys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate key %s", ErrInvalidTransaction, k)
		}
		seen[k] = struct{}{}
	}
	for i, ix := range m.Instructions {
		if int(ix.ProgramIDIndex) >= n {
			return fmt.Errorf("%w: instruction %d program index out of range", ErrInvalidTransaction, i)
		}
		for _, a := range ix.Accounts {
			if int(a) >= n {
				return fmt.Errorf("%w: instruction %d account index out of range", ErrInvalidTransaction, i)
			}
		}
	}
	return nil
}

// Sign fills in the signature of every required signer from keypairs.
func (tx *Transaction) Sign(keypairs ...*types.Keypair) error {
	byKey := make(map[types.Pubkey]*types.Keypair, len(keypairs))
	for _, kp := range keypairs {
		byKey[kp.Pubkey()] = kp
	}

	msg := tx.Message.Serialize()
	tx.Signatures = make([]types.Signature, tx.Message.Header.NumRequiredSignatures)
	for i := range tx.Signatures {
		key := tx.Message.AccountKeys[i]
		kp, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		tx.Signatures[i] = kp.Sign(msg)
	}
	return nil
}

// VerifySignatures checks every signature against its signer key.
func (tx *Transaction) VerifySignatures() error {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: have %d signatures, need %d",
			ErrInvalidTransaction, len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	msg := tx.Message.Serialize()
	for i, sig := range tx.Signatures {
		if !sig.Verify(tx.Message.AccountKeys[i], msg) {
			return fmt.Errorf("%w: signer %s", ErrSignatureFailure, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// ID returns the first signature, which identifies the transaction.
func (tx *Transaction) ID() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// appendCompactU16 appends n in the 1 to 3 byte shortvec encoding.
func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// readCompactU16 decodes a shortvec length and returns the bytes consumed.
func readCompactU16(data []byte) (int, int, error) {
	var v, shift int
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("%w: truncated length", ErrInvalidTransaction)
		}
		v |= int(data[i]&0x7f) << shift
		if data[i]&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("%w: length overflows u16", ErrInvalidTransaction)
}

// Serialize encodes the whole transaction: signatures then message.
func (tx *Transaction) Serialize() []byte {
	buf := appendCompactU16(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, tx.Message.Serialize()...)
}

// DeserializeTransaction decodes a transaction produced by Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	r := &reader{data: data}
	tx := &Transaction{}

	n := r.compact()
	for i := 0; i < n && r.err == nil; i++ {
		var sig types.Signature
		copy(sig[:], r.next(types.SignatureSize))
		tx.Signatures = append(tx.Signatures, sig)
	}

	header := r.next(3)
	if r.err == nil {
		tx.Message.Header = MessageHeader{header[0], header[1], header[2]}
	}
	n = r.compact()
	for i := 0; i < n && r.err == nil; i++ {
		var key types.Pubkey
		copy(key[:], r.next(types.PubkeySize))
		tx.Message.AccountKeys = append(tx.Message.AccountKeys, key)
	}
	copy(tx.Message.RecentBlockhash[:], r.next(types.HashSize))

	n = r.compact()
	for i := 0; i < n && r.err == nil; i++ {
		var ix CompiledInstruction
		if b := r.next(1); r.err == nil {
			ix.ProgramIDIndex = b[0]
		}
		ix.Accounts = append([]uint8(nil), r.next(r.compact())...)
		ix.Data = append([]byte(nil), r.next(r.compact())...)
		tx.Message.Instructions = append(tx.Message.Instructions, ix)
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidTransaction, len(data)-r.off)
	}
	return tx, nil
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at byte %d", ErrInvalidTransaction, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) compact() int {
	if r.err != nil {
		return 0
	}
	v, n, err := readCompactU16(r.data[r.off:])
	if err != nil {
		r.err = err
		return 0
	}
	r.off += n
	return v
}
