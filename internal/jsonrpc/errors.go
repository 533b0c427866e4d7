package jsonrpc

import "errors"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError means the payload was not valid JSON.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest means the JSON was not a valid JSON-RPC message.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound means the method is not served.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams means the method parameters were rejected.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError means the server failed while handling the request.
	ErrorCodeInternalError ErrorCode = -32603
)

var (
	// ErrParse is returned by Decode when the payload is not JSON at all.
	ErrParse = errors.New("jsonrpc: parse error")
	// ErrInvalidMessage is returned by Decode when the payload is JSON but not
	// a well-formed JSON-RPC 2.0 message.
	ErrInvalidMessage = errors.New("jsonrpc: invalid message")
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}
