package rpc

import (
	"fmt"
)

// JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Server error codes, numbered as Solana validators number them.
const (
	NodeUnhealthy                  = -32005
	TransactionHistoryNotAvailable = -32011
	ScanError                      = -32012
	MinContextSlotNotReached       = -32016
)

var (
	ErrParseError     = &RPCError{Code: ParseError, Message: "Parse error"}
	ErrInvalidRequest = &RPCError{Code: InvalidRequest, Message: "Invalid Request"}
	ErrNodeUnhealthy  = &RPCError{Code: NodeUnhealthy, Message: "Node is unhealthy"}
	ErrNoHistory      = &RPCError{Code: TransactionHistoryNotAvailable, Message: "Transaction history is not available from this node (start with the journal enabled)"}
)

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// errorf builds an error with a formatted message.
func errorf(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return errorf(InvalidParams, format, args...)
}

func internalError(format string, args ...interface{}) *RPCError {
	return errorf(InternalError, format, args...)
}

// minContextSlotError reports a request that asked for a newer ledger state
// than the node holds.
func minContextSlotError(minSlot, currentSlot uint64) *RPCError {
	err := errorf(MinContextSlotNotReached, "Minimum context slot %d has not been reached, current slot is %d", minSlot, currentSlot)
	err.Data = map[string]uint64{"minSlot": minSlot, "currentSlot": currentSlot}
	return err
}
