package celestia

import (
	"errors"
	"strings"

	"github.com/filecoin-project/go-jsonrpc"
)

// StatusCode identifies DA layer failures reported over JSON-RPC.
type StatusCode uint64

// Data Availability return codes.
const (
	StatusUnknown StatusCode = iota
	StatusSuccess
	StatusNotFound
	StatusNotIncludedInBlock
	StatusAlreadyInMempool
	StatusTooBig
	StatusContextDeadline
	StatusError
	StatusIncorrectAccountSequence
	StatusContextCanceled
	StatusHeightFromFuture
)

// DAError is a DA layer failure tagged with its status code. The code
// survives the JSON-RPC round trip, so errors.Is matches the sentinels below
// on both sides of the connection.
type DAError struct {
	Code    StatusCode
	Message string
}

func (e *DAError) Error() string {
	return e.Message
}

// Is reports whether target is a DAError with the same code.
func (e *DAError) Is(target error) bool {
	t, ok := target.(*DAError)
	return ok && t.Code == e.Code
}

// ToJSONRPCError implements jsonrpc.RPCErrorCodec.
func (e *DAError) ToJSONRPCError() (jsonrpc.JSONRPCError, error) {
	return jsonrpc.JSONRPCError{Code: jsonrpc.ErrorCode(e.Code), Message: e.Message}, nil //nolint:gosec
}

// FromJSONRPCError implements jsonrpc.RPCErrorCodec.
func (e *DAError) FromJSONRPCError(je jsonrpc.JSONRPCError) error {
	e.Code = StatusCode(je.Code) //nolint:gosec
	e.Message = je.Message
	return nil
}

var (
	ErrBlobNotFound               = &DAError{StatusNotFound, "blob: not found"}
	ErrBlobSizeOverLimit          = &DAError{StatusTooBig, "blob size over limit"}
	ErrTxTimedOut                 = &DAError{StatusContextDeadline, "timed out waiting for tx to be included in a block"}
	ErrTxAlreadyInMempool         = &DAError{StatusAlreadyInMempool, "tx already in mempool"}
	ErrTxIncorrectAccountSequence = &DAError{StatusIncorrectAccountSequence, "incorrect account sequence"}
	ErrContextCanceled            = &DAError{StatusContextCanceled, "context canceled"}
	ErrHeightFromFuture           = &DAError{StatusHeightFromFuture, "given height is from the future"}
)

// knownErrors are the DA failures decoded from JSON-RPC responses.
var knownErrors = []*DAError{
	ErrBlobNotFound,
	ErrBlobSizeOverLimit,
	ErrTxTimedOut,
	ErrTxAlreadyInMempool,
	ErrTxIncorrectAccountSequence,
	ErrContextCanceled,
	ErrHeightFromFuture,
}

// getKnownErrorsMapping returns a mapping of known error codes to their corresponding error types.
func getKnownErrorsMapping() jsonrpc.Errors {
	errs := jsonrpc.NewErrors()
	for _, e := range knownErrors {
		errs.Register(jsonrpc.ErrorCode(e.Code), new(*DAError)) //nolint:gosec
	}
	return errs
}

// fromRPCError maps a JSON-RPC error without a known code to a DA sentinel by
// its message. celestia-node reports most failures this way.
func fromRPCError(err error) error {
	var rpcErr *jsonrpc.JSONRPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	for _, known := range knownErrors {
		if strings.Contains(rpcErr.Message, known.Message) {
			return &DAError{Code: known.Code, Message: rpcErr.Message}
		}
	}
	return err
}

// isRetryable reports whether a failed submission may succeed when retried.
func isRetryable(err error) bool {
	return !errors.Is(err, ErrBlobSizeOverLimit)
}
