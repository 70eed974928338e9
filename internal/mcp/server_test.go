package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/config"
	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/internal/tools"
	"github.com/brandon/mailsync/pkg/types"
)

type stubEngine struct {
	tools.Engine
	syncErr error
}

func (s *stubEngine) Sync(ctx context.Context, accountID, folder string) (*types.SyncResult, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return &types.SyncResult{Status: types.SyncDone, UnreadCount: 1}, nil
}

type reply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	} `json:"error"`
}

func serve(t *testing.T, engine tools.Engine, input ...string) []reply {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{Accounts: []config.AccountConfig{{ID: "a@example.com", ActiveFolder: "INBOX"}}}
	server := NewServer(tools.NewRegistry(cfg, engine, logger), "test", logger)

	var out bytes.Buffer
	require.NoError(t, server.Serve(context.Background(), strings.NewReader(strings.Join(input, "\n")+"\n"), &out))

	var replies []reply
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r reply
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		replies = append(replies, r)
	}
	return replies
}

func TestServe_InitializeAndList(t *testing.T) {
	replies := serve(t, &stubEngine{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
	)
	require.Len(t, replies, 2)

	assert.JSONEq(t, `1`, string(replies[0].ID))
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(replies[0].Result, &init))
	assert.Equal(t, protocolVersion, init.ProtocolVersion)
	assert.Equal(t, "mailsync", init.ServerInfo.Name)

	assert.JSONEq(t, `"two"`, string(replies[1].ID))
	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(replies[1].Result, &list))
	assert.Len(t, list.Tools, 8)
}

func TestServe_ToolCall(t *testing.T) {
	replies := serve(t, &stubEngine{},
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"sync","arguments":{"account_id":"a@example.com"}}}`,
	)
	require.Len(t, replies, 1)
	require.Nil(t, replies[0].Error)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(replies[0].Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Contains(t, result.Content[0].Text, `"status":"done"`)
	assert.Contains(t, result.Content[0].Text, `"unread_count":1`)
}

func TestServe_Errors(t *testing.T) {
	engine := &stubEngine{syncErr: apperrors.Mark(apperrors.ErrAuthExhausted, errors.New("refresh rejected"))}
	replies := serve(t, engine,
		`{not json`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"send_email"}}`,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"get_message","arguments":{"account_id":"a@example.com","uid":"x"}}}`,
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"sync","arguments":{"account_id":"a@example.com"}}}`,
	)
	require.Len(t, replies, 5)
	for _, r := range replies {
		require.NotNil(t, r.Error)
	}

	assert.Equal(t, codeParseError, replies[0].Error.Code)
	assert.Equal(t, codeMethodNotFound, replies[1].Error.Code)
	assert.Equal(t, codeMethodNotFound, replies[2].Error.Code)

	assert.Equal(t, codeInvalidParams, replies[3].Error.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, replies[3].Error.Data["code"])

	assert.Equal(t, codeInternalError, replies[4].Error.Code)
	assert.Equal(t, apperrors.CodeAuthExhausted, replies[4].Error.Data["code"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	server := NewServer(tools.NewRegistry(&config.Config{}, &stubEngine{}, logger), "test", logger)

	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, server.Serve(ctx, r, io.Discard))
}
