package tools

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SyncTool runs a reconciliation cycle for a folder
type SyncTool struct {
	deps
}

// NewSyncTool creates a new sync tool
func NewSyncTool(d deps) *SyncTool {
	return &SyncTool{deps: d}
}

// Name returns the tool name
func (t *SyncTool) Name() string {
	return "sync"
}

// Description returns the tool description
func (t *SyncTool) Description() string {
	return "Replay queued actions, fetch new mail for a folder and return the cached view with its unread count"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SyncTool) InputSchema() map[string]interface{} {
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
func (t *SyncTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	folder := folderParam(acc, params)

	result, err := t.engine.Sync(ctx, acc.ID, folder)
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"account": acc.ID,
		"folder":  folder,
		"status":  result.Status,
	}).Debug("Sync requested")

	return map[string]interface{}{
		"messages":        summarize(result.Messages),
		"unread_count":    result.UnreadCount,
		"status":          result.Status,
		"reauth_required": result.ReauthRequired,
	}, nil
}
