package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context provides slot context for RPC responses.
type Context struct {
	Slot uint64 `json:"slot"`
}

// ResponseWithContext wraps a value with context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// Encoding types for account data.
type Encoding string

const (
	EncodingBase58     Encoding = "base58"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
)

// DataSlice specifies a portion of account data to return.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// AccountInfoConfig configures getAccountInfo and getMultipleAccounts.
type AccountInfoConfig struct {
	Encoding       Encoding   `json:"encoding,omitempty"`
	DataSlice      *DataSlice `json:"dataSlice,omitempty"`
	MinContextSlot *uint64    `json:"minContextSlot,omitempty"`
}

// MetadataConfig selects a metadata record for getMetadata.
type MetadataConfig struct {
	// Seed defaults to "idl".
	Seed string `json:"seed,omitempty"`

	// Authority selects the third-party record of that key instead of the
	// canonical one.
	Authority string `json:"authority,omitempty"`

	// Encoding of the raw payload in the response.
	Encoding Encoding `json:"encoding,omitempty"`
}

// SignaturesConfig configures getSignaturesForAddress.
type SignaturesConfig struct {
	Limit int `json:"limit,omitempty"`
}

// AccountInfo represents account information in RPC responses.
type AccountInfo struct {
	Data       interface{} `json:"data"` // [encoded, encoding]
	Executable bool        `json:"executable"`
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	RentEpoch  uint64      `json:"rentEpoch"`
	Space      uint64      `json:"space"`
}

// MetadataInfo is a decoded metadata record.
type MetadataInfo struct {
	Address     string      `json:"address"`
	Program     string      `json:"program"`
	Authority   *string     `json:"authority"`
	Seed        string      `json:"seed"`
	Mutable     bool        `json:"mutable"`
	Canonical   bool        `json:"canonical"`
	Encoding    string      `json:"encoding"`
	Compression string      `json:"compression"`
	Format      string      `json:"format"`
	DataSource  string      `json:"dataSource"`
	DataLength  uint32      `json:"dataLength"`
	Lamports    uint64      `json:"lamports"`
	Data        interface{} `json:"data"`

	// Content is the unpacked payload. ContentError is set instead when the
	// payload cannot be unpacked.
	Content      *string `json:"content,omitempty"`
	ContentError string  `json:"contentError,omitempty"`
}

// BufferInfo is a decoded buffer account.
type BufferInfo struct {
	Address    string      `json:"address"`
	Authority  *string     `json:"authority"`
	Program    *string     `json:"program"`
	Canonical  bool        `json:"canonical"`
	Seed       string      `json:"seed,omitempty"`
	DataLength int         `json:"dataLength"`
	Lamports   uint64      `json:"lamports"`
	Data       interface{} `json:"data"`
}

// LedgerDigest summarizes the ledger state.
type LedgerDigest struct {
	Slot         uint64 `json:"slot"`
	AccountsHash string `json:"accountsHash"`
	Accounts     uint64 `json:"accounts"`
}

// SignatureInfo represents a journaled transaction touching an address.
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	Err       interface{} `json:"err"`
	BlockTime *int64      `json:"blockTime"`
}

// VersionInfo represents version information.
type VersionInfo struct {
	Version    string `json:"version"`
	FeatureSet uint64 `json:"feature-set,omitempty"`
}

// Version is reported by getVersion.
const Version = "x1-metadata-0.1.0"
