// Package protocol encodes JSON-RPC 2.0 messages and correlates requests with responses.
package protocol

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"go.lsp.dev/jsonrpc2"

	"lsp-tester/src/internal/errors"
)

// JSONRPCVersion is the protocol version tag carried by every message
const JSONRPCVersion = jsonrpc2.Version

// EncodeCall builds the wire body of a request
func EncodeCall(id jsonrpc2.ID, method string, params interface{}) ([]byte, error) {
	call, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return json.Marshal(call)
}

// EncodeNotification builds the wire body of a notification
func EncodeNotification(method string, params interface{}) ([]byte, error) {
	notify, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return json.Marshal(notify)
}

// EncodeResponse builds the wire body of a reply to a server request.
// A non-nil rpcErr that is not already a *jsonrpc2.Error is sent as InternalError.
func EncodeResponse(id jsonrpc2.ID, result interface{}, rpcErr error) ([]byte, error) {
	if rpcErr != nil {
		var wireErr *jsonrpc2.Error
		if !stderrors.As(rpcErr, &wireErr) {
			rpcErr = jsonrpc2.NewError(jsonrpc2.InternalError, rpcErr.Error())
		}
	}
	resp, err := jsonrpc2.NewResponse(id, result, rpcErr)
	if err != nil {
		return nil, fmt.Errorf("encode response %v: %w", id, err)
	}
	return json.Marshal(resp)
}

// DecodeMessage classifies a frame body as *jsonrpc2.Call, *jsonrpc2.Notification or *jsonrpc2.Response
func DecodeMessage(body []byte) (jsonrpc2.Message, error) {
	return jsonrpc2.DecodeMessage(body)
}

// toProtocolError converts a response error payload into the harness error type
func toProtocolError(method string, err error) error {
	var wireErr *jsonrpc2.Error
	if stderrors.As(err, &wireErr) {
		return errors.NewProtocolError(method, int(wireErr.Code), wireErr.Message)
	}
	return errors.NewProtocolError(method, errors.UnknownErrorCode, err.Error())
}

// isNullResult reports whether a response carried no result or an explicit null
func isNullResult(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
