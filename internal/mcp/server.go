package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/internal/tools"
)

const (
	protocolVersion = "2024-11-05"
	maxMessageSize  = 16 << 20
)

// JSON-RPC error codes
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Server answers MCP requests over a line-delimited JSON-RPC stream
type Server struct {
	tools   *tools.Registry
	logger  *logrus.Logger
	version string
}

// NewServer creates a new MCP server instance
func NewServer(registry *tools.Registry, version string, logger *logrus.Logger) *Server {
	return &Server{
		tools:   registry,
		logger:  logger,
		version: version,
	}
}

// Run serves MCP on stdin/stdout until ctx ends or stdin closes
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server with stdio transport")
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one request per line from r and writes responses to w
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			resp := s.handleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("failed to encode response: %w", err)
			}
		}
	}
}

// handleMessage processes one raw message; notifications get no response
func (s *Server) handleMessage(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.WithError(err).Warn("Failed to decode request")
		return &response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &rpcError{Code: codeParseError, Message: "Parse error"},
		}
	}
	if len(req.ID) == 0 {
		s.logger.WithField("method", req.Method).Debug("Received notification")
		return nil
	}

	resp := &response{JSONRPC: "2.0", ID: req.ID}
	result, rpcErr := s.handleRequest(ctx, &req)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) handleRequest(ctx context.Context, req *request) (interface{}, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mailsync",
				"version": s.version,
			},
		}, nil

	case "ping":
		return map[string]interface{}{}, nil

	case "tools/list":
		return map[string]interface{}{
			"tools": s.tools.GetToolDefinitions(),
		}, nil

	case "tools/call":
		return s.callTool(ctx, req.Params)

	default:
		return nil, &rpcError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (interface{}, *rpcError) {
	var params callParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}

	tool, exists := s.tools.GetTool(params.Name)
	if !exists {
		return nil, &rpcError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Tool not found: %s", params.Name),
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		s.logger.WithError(err).WithField("tool", params.Name).Warn("Tool call failed")
		code := codeInternalError
		if apperrors.IsInvalidInput(err) {
			code = codeInvalidParams
		}
		return nil, &rpcError{
			Code:    code,
			Message: err.Error(),
			Data:    map[string]string{"code": apperrors.GetErrorCode(err)},
		}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	return map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": string(resultJSON),
			},
		},
	}, nil
}
