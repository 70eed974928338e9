package tools

import (
	"context"
)

// ListFoldersTool lists an account's folders as a flat list and a tree
type ListFoldersTool struct {
	deps
}

// NewListFoldersTool creates a new list folders tool
func NewListFoldersTool(d deps) *ListFoldersTool {
	return &ListFoldersTool{deps: d}
}

// Name returns the tool name
func (t *ListFoldersTool) Name() string {
	return "list_folders"
}

// Description returns the tool description
func (t *ListFoldersTool) Description() string {
	return "List the folders of an account, classified by role and arranged as a tree. Served from cache when offline."
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": accountProperty,
		},
		"required": []string{"account_id"},
	}
}

// Execute executes the tool
func (t *ListFoldersTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	return t.engine.ListFolders(ctx, acc.ID)
}
