package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/hulybridge/client"
	"pkt.systems/pslog"
)

type toolErrorEnvelope struct {
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
	ServerCode string `json:"server_code,omitempty"`
}

func withStructuredToolErrors[In, Out any](name string, logger pslog.Logger, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		env := classifyToolError(err)
		logger.Debug("mcp.tool.error", "tool", name, "error_code", env.ErrorCode, "retryable", env.Retryable, "error", err)
		var zero Out
		return nil, zero, toolError{Envelope: env}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"internal_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{
		ErrorCode: client.ErrorCode(err),
		Detail:    strings.TrimSpace(err.Error()),
	}
	switch env.ErrorCode {
	case client.CodeTimeout, client.CodeConnectionClosed, client.CodeNotConnected:
		env.Retryable = true
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		env.HTTPStatus = apiErr.Status
		switch {
		case apiErr.Status == http.StatusTooManyRequests, apiErr.Status == http.StatusRequestTimeout, apiErr.Status >= 500:
			env.Retryable = true
		}
	}
	var srvErr *client.ServerError
	if errors.As(err, &srvErr) {
		env.ServerCode = srvErr.Code
	}
	return env
}
