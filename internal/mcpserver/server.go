// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes rulesync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/ruleservice"
)

// Server wraps the MCP server with rulesync tools.
type Server struct {
	mcp *server.MCPServer
	svc *ruleservice.Service
}

// New creates a new MCP server with all rulesync tools registered.
func New(svc *ruleservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"rulesync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List rules in the shared store with their descriptions and tags."),
		mcp.WithString("filter", mcp.Description("Optional fuzzy filter on name and description")),
		mcp.WithString("tag", mcp.Description("Optional tag to filter by")),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("read_rule",
		mcp.WithDescription("Read the full content of a rule."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule file name (e.g. go-style.mdc)")),
	), s.readRule)

	s.mcp.AddTool(mcp.NewTool("save_rule",
		mcp.WithDescription("Create or replace a rule in the shared store. "+
			"Read the store layout first via the get_store_layout tool or the "+
			StoreLayoutURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule file name, no path separators")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full rule content")),
		mcp.WithString("description", mcp.Description("Short description stored in the sidecar")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags stored in the sidecar")),
	), s.saveRule)

	s.mcp.AddTool(mcp.NewTool("delete_rule",
		mcp.WithDescription("Delete a rule and its metadata from the shared store."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule file name")),
	), s.deleteRule)

	s.mcp.AddTool(mcp.NewTool("search_rules",
		mcp.WithDescription("Search rule names, descriptions, tags and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchRules)

	s.mcp.AddTool(mcp.NewTool("import_rule",
		mcp.WithDescription("Copy a shared rule into the nearest project rules directory above a context path."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule file name")),
		mcp.WithString("context", mcp.Required(), mcp.Description("Absolute file or directory path inside the target project")),
	), s.importRule)

	s.mcp.AddTool(mcp.NewTool("get_store_layout",
		mcp.WithDescription("Returns the on-disk layout of the shared rule store. "+
			"Call this before saving rules."),
	), s.getStoreLayout)

	s.mcp.AddResource(
		mcp.NewResource(StoreLayoutURI, "Store Layout",
			mcp.WithResourceDescription("On-disk format of rules and their metadata sidecars."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStoreLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError converts a domain error into a tool error result.
func toolError(name string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name))
	case errors.Is(err, apperr.ErrNoRules):
		return mcp.NewToolResultError("no rules found in the shared store")
	case errors.Is(err, apperr.ErrDestinationMissing):
		return mcp.NewToolResultError("no rules directory found above the context path")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules, err := s.svc.List(ctx)
	if err != nil {
		return toolError("", err), nil
	}
	rules = ruleservice.FilterTag(rules, req.GetString("tag", ""))
	rules = ruleservice.Filter(rules, req.GetString("filter", ""))
	if rules == nil {
		rules = []models.Rule{}
	}
	return jsonResult(rules)
}

func (s *Server) readRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := s.svc.Store().ReadContent(name)
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) saveRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rule := models.Rule{
		Name:        name,
		Description: req.GetString("description", ""),
		Tags:        req.GetStringSlice("tags", nil),
	}
	if _, err := s.svc.Save(ctx, rule, []byte(content)); err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", name)), nil
}

func (s *Server) deleteRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, name); err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", name)), nil
}

func (s *Server) searchRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError("", err), nil
	}
	return jsonResult(results)
}

func (s *Server) importRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contextPath, err := req.RequireString("context")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pick, err := s.svc.OnImportRequested(ctx, contextPath)
	if err != nil {
		return toolError(name, err), nil
	}
	out, err := s.svc.OnPickMade(ctx, pick, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(out.Message()), nil
}

func (s *Server) getStoreLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StoreLayout), nil
}

func (s *Server) readStoreLayoutResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StoreLayoutURI,
			MIMEType: "text/markdown",
			Text:     StoreLayout,
		},
	}, nil
}
