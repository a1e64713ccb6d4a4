// Package errors provides the harness error types and JSON-RPC/LSP error codes.
package errors

// Standard JSON-RPC error codes
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes
const (
	ServerNotInitialized = -32002 // Server not initialized
	UnknownErrorCode     = -32001 // Unknown error code
	RequestCancelled     = -32800 // Request was cancelled
	ContentModified      = -32801 // Content was modified
	ServerCancelled      = -32802 // Server cancelled the request
	RequestFailed        = -32803 // Request failed with unrecoverable error
)

// Harness error codes, used when a local failure has to be reported as a ProtocolError
const (
	InvalidResponse = -33001 // Response could not be decoded
	ConnectionLost  = -33002 // Stream closed while a request was pending
)

// Error code categories
const (
	CategoryJSONRPC = "jsonrpc"
	CategoryLSP     = "lsp"
	CategoryHarness = "harness"
	CategoryUnknown = "unknown"
)

// GetErrorCodeCategory returns the category for a given error code
func GetErrorCodeCategory(code int) string {
	switch {
	case code >= -32700 && code <= -32600:
		return CategoryJSONRPC
	case code >= -32099 && code <= -32000:
		// reserved for server-defined errors
		return CategoryJSONRPC
	case code >= -32899 && code <= -32800:
		return CategoryLSP
	case code >= -33099 && code <= -33001:
		return CategoryHarness
	default:
		return CategoryUnknown
	}
}

var errorCodeMessages = map[int]string{
	ParseError:           "Parse error",
	InvalidRequest:       "Invalid Request",
	MethodNotFound:       "Method not found",
	InvalidParams:        "Invalid params",
	InternalError:        "Internal error",
	ServerNotInitialized: "Server not initialized",
	UnknownErrorCode:     "Unknown error code",
	RequestCancelled:     "Request cancelled",
	ContentModified:      "Content modified",
	ServerCancelled:      "Server cancelled",
	RequestFailed:        "Request failed",
	InvalidResponse:      "Invalid response",
	ConnectionLost:       "Connection lost",
}

// GetErrorCodeMessage returns the standard message for a given error code
func GetErrorCodeMessage(code int) string {
	if msg, ok := errorCodeMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}
