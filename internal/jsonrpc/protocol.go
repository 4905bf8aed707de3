// Package jsonrpc serves the evaluation service as newline-delimited
// JSON-RPC 2.0 over stdio or TCP. A client that calls run.watch also
// receives run.progress notifications while an evaluation runs.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

const version = "2.0"

// MethodProgress is the notification pushed to watching clients.
const MethodProgress = "run.progress"

var nullID = json.RawMessage("null")

// Request is a call or, when ID is absent, a notification from the client.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	// ID holds the raw id. An explicit null decodes to "null" and still
	// expects a response.
	ID json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the client omitted the id.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response answers one call.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Notification is pushed by the server without a preceding call.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Protocol error codes, followed by the evaluation service's own.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeNotFound         = -32000
	CodeValidationFailed = -32001
	CodeAlreadyRunning   = -32002
	CodeDatasetFormat    = -32003
)

var errorMessages = map[int]string{
	CodeParseError:       "Parse error",
	CodeInvalidRequest:   "Invalid request",
	CodeMethodNotFound:   "Method not found",
	CodeInvalidParams:    "Invalid params",
	CodeInternalError:    "Internal error",
	CodeNotFound:         "Not found",
	CodeValidationFailed: "Validation failed",
	CodeAlreadyRunning:   "Evaluation already running",
	CodeDatasetFormat:    "Invalid dataset",
}

func newError(code int, data any) *Error {
	return &Error{Code: code, Message: errorMessages[code], Data: data}
}
