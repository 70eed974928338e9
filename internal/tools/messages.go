package tools

import (
	"context"
	"time"

	"github.com/brandon/mailsync/pkg/types"
)

// messageSummary is the list view of a cached message
type messageSummary struct {
	UID     uint32 `json:"uid"`
	Folder  string `json:"folder"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	IsRead  bool   `json:"is_read"`
}

func summarize(msgs []types.CachedMessage) []messageSummary {
	out := make([]messageSummary, len(msgs))
	for i, m := range msgs {
		out[i] = messageSummary{
			UID:     m.UID,
			Folder:  m.FolderPath,
			Subject: m.Subject,
			Sender:  m.Sender,
			Date:    m.Date.Format(time.RFC3339),
			Snippet: m.Snippet,
			IsRead:  m.IsRead,
		}
	}
	return out
}

// GetCachedTool returns the cached messages of a folder
type GetCachedTool struct {
	deps
}

// NewGetCachedTool creates a new get cached tool
func NewGetCachedTool(d deps) *GetCachedTool {
	return &GetCachedTool{deps: d}
}

// Name returns the tool name
func (t *GetCachedTool) Name() string {
	return "get_cached"
}

// Description returns the tool description
func (t *GetCachedTool) Description() string {
	return "List the most recent cached messages of a folder without contacting the server"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetCachedTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": accountProperty,
			"folder":     folderProperty,
		},
		"required": []string{"account_id"},
	}
}

// Execute executes the tool
func (t *GetCachedTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	msgs, err := t.engine.GetCached(ctx, acc.ID, folderParam(acc, params))
	if err != nil {
		return nil, err
	}
	return summarize(msgs), nil
}

// GetMessageTool returns one cached message with body and attachments
type GetMessageTool struct {
	deps
}

// NewGetMessageTool creates a new get message tool
func NewGetMessageTool(d deps) *GetMessageTool {
	return &GetMessageTool{deps: d}
}

// Name returns the tool name
func (t *GetMessageTool) Name() string {
	return "get_message"
}

// Description returns the tool description
func (t *GetMessageTool) Description() string {
	return "Retrieve one cached message by UID, including its HTML body and attachment metadata"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetMessageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": accountProperty,
			"folder":     folderProperty,
			"uid":        uidProperty,
		},
		"required": []string{"account_id", "uid"},
	}
}

// Execute executes the tool
func (t *GetMessageTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	uid, err := uidParam(params, "uid")
	if err != nil {
		return nil, err
	}
	return t.engine.GetMessage(ctx, acc.ID, folderParam(acc, params), uid)
}
