package rpc

import (
	"encoding/json"
	"errors"

	"github.com/fortiblox/x1-metadata/internal/types"
	"github.com/fortiblox/x1-metadata/pkg/accounts"
	"github.com/fortiblox/x1-metadata/pkg/client"
	"github.com/fortiblox/x1-metadata/pkg/svm"
)

const (
	defaultSignaturesLimit = 1000
	maxMultipleAccounts    = 100
)

// parseArgs splits positional params. Missing params decode as no args.
func parseArgs(params json.RawMessage, required int) ([]json.RawMessage, *RPCError) {
	var args []json.RawMessage
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, invalidParams("invalid params")
		}
	}
	if len(args) < required {
		return nil, invalidParams("expected at least %d params, got %d", required, len(args))
	}
	return args, nil
}

func parsePubkey(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Pubkey{}, invalidParams("invalid pubkey")
	}
	pubkey, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, invalidParams("invalid pubkey format")
	}
	return pubkey, nil
}

// parseConfig decodes the optional config object at args[i] into v.
func parseConfig(args []json.RawMessage, i int, v interface{}) *RPCError {
	if len(args) <= i {
		return nil
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return invalidParams("invalid config")
	}
	return nil
}

func (s *Server) slot() uint64 {
	return s.accountsDB.GetSlot()
}

func (s *Server) withContext(value interface{}) ResponseWithContext {
	return ResponseWithContext{Context: Context{Slot: s.slot()}, Value: value}
}

// loadAccount returns nil without error when the account does not exist.
func (s *Server) loadAccount(pubkey types.Pubkey) (*accounts.Account, *RPCError) {
	account, err := s.accountsDB.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError("failed to get account: %v", err)
	}
	return account, nil
}

func accountInfo(account *accounts.Account, encoding Encoding, dataSlice *DataSlice) (*AccountInfo, *RPCError) {
	data, rpcErr := encodeData(ApplyDataSlice(account.Data, dataSlice), encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &AccountInfo{
		Data:       data,
		Executable: account.Executable,
		Lamports:   account.Lamports,
		Owner:      account.Owner.String(),
		RentEpoch:  account.RentEpoch,
		Space:      uint64(len(account.Data)),
	}, nil
}

func (s *Server) accountConfig(args []json.RawMessage, i int) (AccountInfoConfig, *RPCError) {
	var config AccountInfoConfig
	if rpcErr := parseConfig(args, i, &config); rpcErr != nil {
		return config, rpcErr
	}
	encoding, err := ParseEncoding(string(config.Encoding))
	if err != nil {
		return config, invalidParams("%v", err)
	}
	config.Encoding = encoding
	if current := s.slot(); config.MinContextSlot != nil && *config.MinContextSlot > current {
		return config, minContextSlotError(*config.MinContextSlot, current)
	}
	return config, nil
}

// getAccountInfo returns a single account, or a null value when missing.
func (s *Server) getAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	config, rpcErr := s.accountConfig(args, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, rpcErr := s.loadAccount(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if account == nil {
		return s.withContext(nil), nil
	}
	info, rpcErr := accountInfo(account, config.Encoding, config.DataSlice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.withContext(info), nil
}

func (s *Server) getBalance(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, rpcErr := s.loadAccount(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if account != nil {
		lamports = account.Lamports
	}
	return s.withContext(lamports), nil
}

func (s *Server) getMultipleAccounts(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var keys []string
	if err := json.Unmarshal(args[0], &keys); err != nil {
		return nil, invalidParams("invalid pubkey list")
	}
	if len(keys) > maxMultipleAccounts {
		return nil, invalidParams("too many accounts requested, max %d", maxMultipleAccounts)
	}
	config, rpcErr := s.accountConfig(args, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	infos := make([]*AccountInfo, len(keys))
	for i, k := range keys {
		pubkey, err := types.PubkeyFromBase58(k)
		if err != nil {
			return nil, invalidParams("invalid pubkey %q", k)
		}
		account, rpcErr := s.loadAccount(pubkey)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if account == nil {
			continue
		}
		if infos[i], rpcErr = accountInfo(account, config.Encoding, config.DataSlice); rpcErr != nil {
			return nil, rpcErr
		}
	}
	return s.withContext(infos), nil
}

// getMetadata resolves and decodes the metadata record of a program:
// [program, {seed?, authority?, encoding?}].
func (s *Server) getMetadata(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	program, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config MetadataConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.Seed == "" {
		config.Seed = "idl"
	}
	seed, err := client.Seed(config.Seed)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	encoding, err := ParseEncoding(string(config.Encoding))
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	var authority *types.Pubkey
	if config.Authority != "" {
		key, err := types.PubkeyFromBase58(config.Authority)
		if err != nil {
			return nil, invalidParams("invalid authority")
		}
		authority = &key
	}

	address, err := client.FindMetadataAddress(program, authority, seed)
	if err != nil {
		return nil, internalError("failed to derive address: %v", err)
	}
	account, rpcErr := s.loadAccount(address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if account == nil {
		return s.withContext(nil), nil
	}

	record, err := client.FetchMetadata(s.accountsDB, address)
	if err != nil {
		return nil, invalidParams("account %s is not a metadata record: %v", address, err)
	}
	h := record.Header
	data, rpcErr := encodeData(record.Payload, encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info := &MetadataInfo{
		Address:     address.String(),
		Program:     h.Program.String(),
		Authority:   keyString(h.Authority),
		Seed:        h.Seed.String(),
		Mutable:     h.Mutable,
		Canonical:   h.Canonical,
		Encoding:    h.Encoding.String(),
		Compression: h.Compression.String(),
		Format:      h.Format.String(),
		DataSource:  h.DataSource.String(),
		DataLength:  h.DataLength,
		Lamports:    record.Lamports,
		Data:        data,
	}
	if text, err := record.Content(s.accountsDB); err != nil {
		info.ContentError = err.Error()
	} else {
		info.Content = &text
	}
	return s.withContext(info), nil
}

// getBuffer decodes a buffer account: [address, {encoding?}].
func (s *Server) getBuffer(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	address, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	config, rpcErr := s.accountConfig(args, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, rpcErr := s.loadAccount(address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if account == nil {
		return s.withContext(nil), nil
	}
	header, payload, err := client.FetchBuffer(s.accountsDB, address)
	if err != nil {
		return nil, invalidParams("account %s is not a buffer: %v", address, err)
	}
	data, rpcErr := encodeData(ApplyDataSlice(payload, config.DataSlice), config.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	info := &BufferInfo{
		Address:    address.String(),
		Authority:  keyString(header.Authority),
		Program:    keyString(header.Program),
		Canonical:  header.Canonical,
		DataLength: len(payload),
		Lamports:   account.Lamports,
		Data:       data,
	}
	if header.IsPDA() {
		info.Seed = header.Seed.String()
	}
	return s.withContext(info), nil
}

func keyString(key *types.Pubkey) *string {
	if key == nil {
		return nil
	}
	s := key.String()
	return &s
}

func (s *Server) getSlot(params json.RawMessage) (interface{}, *RPCError) {
	return s.slot(), nil
}

// getLedgerDigest returns the accounts hash of the current ledger state.
func (s *Server) getLedgerDigest(params json.RawMessage) (interface{}, *RPCError) {
	hash, err := accounts.ComputeAccountsHash(s.accountsDB)
	if err != nil {
		return nil, errorf(ScanError, "%v", err)
	}
	count, err := s.accountsDB.AccountsCount()
	if err != nil {
		return nil, internalError("failed to count accounts: %v", err)
	}
	return LedgerDigest{
		Slot:         s.slot(),
		AccountsHash: hash.String(),
		Accounts:     count,
	}, nil
}

// getSignaturesForAddress lists journaled transactions that named an
// address, newest first.
func (s *Server) getSignaturesForAddress(params json.RawMessage) (interface{}, *RPCError) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	address, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config SignaturesConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.Limit <= 0 || config.Limit > defaultSignaturesLimit {
		config.Limit = defaultSignaturesLimit
	}

	entries, err := s.history.ByAccount(address, config.Limit)
	if err != nil {
		return nil, internalError("failed to read journal: %v", err)
	}
	result := make([]SignatureInfo, 0, len(entries))
	for _, e := range entries {
		info := SignatureInfo{Signature: e.Signature.String(), Slot: e.Slot}
		if !e.Success {
			info.Err = e.Err
		}
		if !e.Time.IsZero() {
			t := e.Time.Unix()
			info.BlockTime = &t
		}
		result = append(result, info)
	}
	return result, nil
}

func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{Version: Version}, nil
}

// getMinimumBalanceForRentExemption prices data length with the ledger's
// rent parameters.
func (s *Server) getMinimumBalanceForRentExemption(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var dataLen uint64
	if err := json.Unmarshal(args[0], &dataLen); err != nil {
		return nil, invalidParams("invalid data length")
	}
	if dataLen > svm.MaxAccountDataSize {
		return nil, invalidParams("data length %d exceeds the account size limit", dataLen)
	}
	return s.config.Rent.MinimumBalance(int(dataLen)), nil
}
