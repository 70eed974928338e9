package tools

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

// Engine is the request/response surface of the sync engine
type Engine interface {
	ListFolders(ctx context.Context, accountID string) (*types.FolderListing, error)
	GetCached(ctx context.Context, accountID, folder string) ([]types.CachedMessage, error)
	GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*types.CachedMessage, error)
	Sync(ctx context.Context, accountID, folder string) (*types.SyncResult, error)
	Search(ctx context.Context, accountID, query string) ([]types.CachedMessage, error)
	Delete(ctx context.Context, accountID, folder string, uid uint32) error
	MarkRead(ctx context.Context, accountID, folder string, uid uint32) error
}

// Tool represents an MCP tool
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// deps is what every tool needs
type deps struct {
	config *config.Config
	engine Engine
	logger *logrus.Logger
}

// Registry manages MCP tools
type Registry struct {
	deps
	tools map[string]Tool
}

// NewRegistry creates a registry holding every engine operation
func NewRegistry(cfg *config.Config, engine Engine, logger *logrus.Logger) *Registry {
	reg := &Registry{
		deps:  deps{config: cfg, engine: engine, logger: logger},
		tools: make(map[string]Tool),
	}
	reg.registerTools()
	return reg
}

func (r *Registry) registerTools() {
	toolList := []Tool{
		NewListAccountsTool(r.deps),
		NewListFoldersTool(r.deps),
		NewGetCachedTool(r.deps),
		NewGetMessageTool(r.deps),
		NewSyncTool(r.deps),
		NewSearchTool(r.deps),
		NewMutationTool(r.deps, actionDelete),
		NewMutationTool(r.deps, actionMarkRead),
	}

	for _, tool := range toolList {
		r.tools[tool.Name()] = tool
		r.logger.WithField("tool", tool.Name()).Debug("Registered tool")
	}
	r.logger.WithField("count", len(r.tools)).Info("Registered tools")
}

// GetTool returns a tool by name
func (r *Registry) GetTool(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// ListTools returns all registered tools ordered by name
func (r *Registry) ListTools() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetToolDefinitions returns tool definitions for MCP
func (r *Registry) GetToolDefinitions() []map[string]interface{} {
	tools := r.ListTools()
	definitions := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.InputSchema(),
		})
	}
	return definitions
}
