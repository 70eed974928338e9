package tools

import (
	"context"
)

// SearchTool runs a full-text search over cached messages
type SearchTool struct {
	deps
}

// NewSearchTool creates a new search tool
func NewSearchTool(d deps) *SearchTool {
	return &SearchTool{deps: d}
}

// Name returns the tool name
func (t *SearchTool) Name() string {
	return "search"
}

// Description returns the tool description
func (t *SearchTool) Description() string {
	return "Search cached messages of an account by subject, sender and body. Every word is matched as a prefix; newest first."
}

// InputSchema returns the JSON schema for tool inputs
func (t *SearchTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": accountProperty,
			"query":      schemaProperty("string", "Search text"),
		},
		"required": []string{"account_id", "query"},
	}
}

// Execute executes the tool
func (t *SearchTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := accountParam(t.config, params)
	if err != nil {
		return nil, err
	}
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}

	msgs, err := t.engine.Search(ctx, acc.ID, query)
	if err != nil {
		return nil, err
	}
	return summarize(msgs), nil
}
