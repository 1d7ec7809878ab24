package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/resolver"
	"github.com/starford/rulesync/internal/ruleservice"
	"github.com/starford/rulesync/internal/testutil"
)

func testServer(t *testing.T) (*Server, *ruleservice.Service) {
	t.Helper()
	_, store := testutil.TestStore(t)
	svc := ruleservice.New(store, resolver.New(testutil.Marker),
		ruleservice.WithCatalog(testutil.TestDB(t)),
		ruleservice.WithLogger(testutil.QuietLogger()),
	)
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_rules":
		result, err = srv.listRules(ctx, req)
	case "read_rule":
		result, err = srv.readRule(ctx, req)
	case "save_rule":
		result, err = srv.saveRule(ctx, req)
	case "delete_rule":
		result, err = srv.deleteRule(ctx, req)
	case "search_rules":
		result, err = srv.searchRules(ctx, req)
	case "import_rule":
		result, err = srv.importRule(ctx, req)
	case "get_store_layout":
		result, err = srv.getStoreLayout(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSaveAndReadRule(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "save_rule", map[string]interface{}{
		"name":        "go.mdc",
		"content":     "Always run gofmt.",
		"description": "Go formatting",
		"tags":        []interface{}{"go", "style"},
	})
	if text := resultText(r); text != "saved: go.mdc" {
		t.Errorf("save result = %q", text)
	}

	r = callTool(t, srv, "read_rule", map[string]interface{}{"name": "go.mdc"})
	if text := resultText(r); text != "Always run gofmt." {
		t.Errorf("read result = %q", text)
	}

	detail, err := svc.Get(context.Background(), "go.mdc")
	if err != nil {
		t.Fatal(err)
	}
	if detail.Description != "Go formatting" || len(detail.Tags) != 2 {
		t.Errorf("metadata = %+v", detail.Rule)
	}
}

func TestSaveRule_InvalidName(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "save_rule", map[string]interface{}{
		"name":    "../escape.mdc",
		"content": "x",
	})
	if !r.IsError {
		t.Error("expected error for invalid name")
	}
}

func TestReadRuleMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_rule", map[string]interface{}{"name": "nope.mdc"})
	if !r.IsError {
		t.Fatal("expected error for missing rule")
	}
	if text := resultText(r); text != "not found: nope.mdc" {
		t.Errorf("error text = %q", text)
	}
}

func TestListRules(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	for _, r := range []models.Rule{
		{Name: "a.mdc", Tags: []string{"go"}},
		{Name: "b.mdc", Tags: []string{"web"}},
	} {
		if _, err := svc.Save(ctx, r, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	r := callTool(t, srv, "list_rules", map[string]interface{}{})
	var all []models.Rule
	if err := json.Unmarshal([]byte(resultText(r)), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("list = %d rules, want 2", len(all))
	}

	r = callTool(t, srv, "list_rules", map[string]interface{}{"tag": "web"})
	var web []models.Rule
	if err := json.Unmarshal([]byte(resultText(r)), &web); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(web) != 1 || web[0].Name != "b.mdc" {
		t.Errorf("tag filter = %+v", web)
	}
}

func TestDeleteRule(t *testing.T) {
	srv, svc := testServer(t)
	if _, err := svc.Save(context.Background(), models.Rule{Name: "a.mdc"}, []byte("x")); err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "delete_rule", map[string]interface{}{"name": "a.mdc"})
	if text := resultText(r); text != "deleted: a.mdc" {
		t.Errorf("delete result = %q", text)
	}
	r = callTool(t, srv, "read_rule", map[string]interface{}{"name": "a.mdc"})
	if !r.IsError {
		t.Error("rule should be gone")
	}
}

func TestSearchRules(t *testing.T) {
	srv, svc := testServer(t)
	if _, err := svc.Save(context.Background(), models.Rule{Name: "go.mdc"}, []byte("prefer table driven tests")); err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "search_rules", map[string]interface{}{"query": "table"})
	if !strings.Contains(resultText(r), "go.mdc") {
		t.Errorf("search result = %q", resultText(r))
	}

	r = callTool(t, srv, "search_rules", map[string]interface{}{})
	if !r.IsError {
		t.Error("missing query should be an error")
	}
}

func TestImportRule(t *testing.T) {
	srv, svc := testServer(t)
	root := t.TempDir()
	proj, marker := testutil.Project(t, root, "app")

	r := callTool(t, srv, "import_rule", map[string]interface{}{"name": "a.mdc", "context": proj})
	if !r.IsError || resultText(r) != "no rules found in the shared store" {
		t.Errorf("empty store result = %q", resultText(r))
	}

	if _, err := svc.Save(context.Background(), models.Rule{Name: "a.mdc"}, []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "import_rule", map[string]interface{}{"name": "a.mdc", "context": proj})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	if got := testutil.ReadFile(t, filepath.Join(marker, "a.mdc")); got != "alpha" {
		t.Errorf("imported content = %q", got)
	}

	r = callTool(t, srv, "import_rule", map[string]interface{}{"name": "a.mdc", "context": root})
	if !r.IsError {
		t.Error("expected error without a rules directory")
	}
}

func TestStoreLayout(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_store_layout", map[string]interface{}{})
	if resultText(r) != StoreLayout {
		t.Error("tool should return the store layout")
	}

	contents, err := srv.readStoreLayoutResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != StoreLayoutURI || !strings.Contains(tc.Text, ".meta") {
		t.Errorf("resource = %+v", contents[0])
	}
}
