package server

import (
	"context"
	"encoding/json"
	"strings"

	"go.lsp.dev/protocol"

	"lsp-tester/src/internal/common"
	rpc "lsp-tester/src/server/protocol"
)

// registerHandlers wires server-to-client traffic. Servers block on some of these
// requests during startup, so every one gets an answer.
func (s *LSPServer) registerHandlers(h *rpc.MessageHandler) {
	s.validator.Subscribe(h)

	h.OnNotification(protocol.MethodWindowLogMessage, s.logServerMessage("log"))
	h.OnNotification(protocol.MethodWindowShowMessage, s.logServerMessage("show"))

	h.OnRequest(protocol.MethodWorkspaceConfiguration, s.answerConfiguration)
	h.OnRequest(protocol.MethodClientRegisterCapability, acknowledge)
	h.OnRequest(protocol.MethodClientUnregisterCapability, acknowledge)
	h.OnRequest(protocol.MethodWorkDoneProgressCreate, acknowledge)
}

// acknowledge answers with a null result
func acknowledge(context.Context, json.RawMessage) (interface{}, error) {
	return nil, nil
}

func (s *LSPServer) logServerMessage(kind string) rpc.NotificationHandler {
	logger := s.logger.With("channel", kind)
	return func(params json.RawMessage) {
		var p protocol.LogMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			logger.Debug("Malformed server message: %s", common.SanitizeErrorForLogging(err))
			return
		}
		switch p.Type {
		case protocol.MessageTypeError, protocol.MessageTypeWarning:
			logger.Warn("[server] %s", p.Message)
		default:
			logger.Debug("[server] %s", p.Message)
		}
	}
}

// answerConfiguration returns one settings value per requested item. An empty
// section gets the whole settings map; an unknown one gets an empty object.
func (s *LSPServer) answerConfiguration(_ context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ConfigurationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	result := make([]interface{}, len(p.Items))
	for i, item := range p.Items {
		result[i] = lookupSection(s.opts.Settings, item.Section)
	}
	return result, nil
}

// lookupSection resolves a dotted section such as "python.analysis"
func lookupSection(settings map[string]interface{}, section string) interface{} {
	if section == "" {
		if settings == nil {
			return map[string]interface{}{}
		}
		return settings
	}

	var cur interface{} = settings
	for _, part := range strings.Split(section, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return map[string]interface{}{}
		}
		if cur, ok = m[part]; !ok {
			return map[string]interface{}{}
		}
	}
	return cur
}
