package tools

import "context"

// ListAccountsTool lists the configured account identities
type ListAccountsTool struct {
	deps
}

// NewListAccountsTool creates a new list accounts tool
func NewListAccountsTool(d deps) *ListAccountsTool {
	return &ListAccountsTool{deps: d}
}

// Name returns the tool name
func (t *ListAccountsTool) Name() string {
	return "list_accounts"
}

// Description returns the tool description
func (t *ListAccountsTool) Description() string {
	return "List the mail accounts known to the sync engine"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListAccountsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ListAccountsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return t.config.AccountList(), nil
}
