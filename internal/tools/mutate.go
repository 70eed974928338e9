package tools

import (
	"context"

	"github.com/sirupsen/logrus"
)

type mutation struct {
	name        string
	description string
	run         func(e Engine, ctx context.Context, accountID, folder string, uid uint32) error
}

var (
	actionDelete = mutation{
		name:        "delete",
		description: "Move a message to the trash. Applied to the cache at once and replayed later if the server is unreachable.",
		run:         Engine.Delete,
	}
	actionMarkRead = mutation{
		name:        "mark_read",
		description: "Mark a message as read. Applied to the cache at once and replayed later if the server is unreachable.",
		run:         Engine.MarkRead,
	}
)

// MutationTool applies a user action to one message
type MutationTool struct {
	deps
	mutation
}

// NewMutationTool creates a tool for one mutation
func NewMutationTool(d deps, m mutation) *MutationTool {
	return &MutationTool{deps: d, mutation: m}
}

// Name returns the tool name
func (t *MutationTool) Name() string {
	return t.name
}

// Description returns the tool description
func (t *MutationTool) Description() string {
	return t.description
}

// InputSchema returns the JSON schema for tool inputs
func (t *MutationTool) InputSchema() map[string]interface{} {
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
func (t *MutationTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	uid, err := uidParam(params, "uid")
	if err != nil {
		return nil, err
	}
	folder := folderParam(acc, params)

	if err := t.run(t.engine, ctx, acc.ID, folder, uid); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"account": acc.ID,
		"folder":  folder,
		"uid":     uid,
		"action":  t.name,
	}).Info("Applied user action")

	return map[string]interface{}{
		"success": true,
		"uid":     uid,
		"folder":  folder,
	}, nil
}
