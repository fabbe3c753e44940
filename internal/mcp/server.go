package mcp

import (
	"context"
	"database/sql"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/ops"
)

type toolHandler func(*Handlers, context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// tools lists every tool in registration order. Names come from the
// definitions in tools.go.
var tools = []struct {
	def    mcp.Tool
	handle toolHandler
}{
	{addToolDef, (*Handlers).HandleAdd},
	{getToolDef, (*Handlers).HandleGet},
	{updateToolDef, (*Handlers).HandleUpdate},
	{deleteToolDef, (*Handlers).HandleDelete},
	{listToolDef, (*Handlers).HandleList},
	{extractToolDef, (*Handlers).HandleExtract},
	{ingestToolDef, (*Handlers).HandleIngest},
	{progressToolDef, (*Handlers).HandleProgress},
	{exportToolDef, (*Handlers).HandleExport},
	{importToolDef, (*Handlers).HandleImport},
	{purgeToolDef, (*Handlers).HandlePurge},
}

// AllToolNames returns the tool names, sorted.
func AllToolNames() []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.def.Name
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns the entries of names that match no tool.
func ValidateDisabledTools(names []string) []string {
	known := AllToolNames()
	var unknown []string
	for _, name := range names {
		if !slices.Contains(known, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer builds the MCP server, skipping any tool named in
// cfg.DisabledTools.
func NewServer(db *sql.DB, cfg *config.Config, x *ops.Extraction, version string) *server.MCPServer {
	s := server.NewMCPServer("cpetrack", version, server.WithToolCapabilities(true))
	h := NewHandlers(db, cfg, x)

	for _, t := range tools {
		if slices.Contains(cfg.DisabledTools, t.def.Name) {
			continue
		}
		handle := t.handle
		s.AddTool(t.def, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handle(h, ctx, req)
		})
	}
	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(db *sql.DB, cfg *config.Config, x *ops.Extraction, version string) error {
	return server.ServeStdio(NewServer(db, cfg, x, version))
}
