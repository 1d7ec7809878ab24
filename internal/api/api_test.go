package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/resolver"
	"github.com/starford/rulesync/internal/ruleservice"
	"github.com/starford/rulesync/internal/storage"
	"github.com/starford/rulesync/internal/testutil"
)

// testEnv sets up a temp store, SQLite catalog, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*ruleservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*ruleservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestStore(t)
	svc := ruleservice.New(store, resolver.New(testutil.Marker),
		ruleservice.WithCatalog(testutil.TestDB(t)),
		ruleservice.WithLogger(testutil.QuietLogger()),
	)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func ptr(s string) *string { return &s }

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPutAndGetRule(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/rules/go.mdc", PutRuleRequest{
		Content:     ptr("Always run gofmt."),
		Description: "Go formatting",
		Tags:        []string{"go"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/rules/go.mdc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail RuleDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Name != "go.mdc" || detail.Description != "Go formatting" || detail.Content != "Always run gofmt." {
		t.Errorf("detail = %+v", detail)
	}
	if len(detail.Tags) != 1 || detail.Tags[0] != "go" {
		t.Errorf("tags = %v", detail.Tags)
	}
}

func TestGetRuleContent(t *testing.T) {
	svc, router := testEnv(t, "")
	if _, err := svc.Save(context.Background(), models.Rule{Name: "a.mdc"}, []byte("raw body")); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/rules/a.mdc/content", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "raw body" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	w = do(t, router, http.MethodGet, "/rules/missing.mdc/content", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing content = %d, want 404", w.Code)
	}
}

func TestGetRule_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/rules/nope.mdc", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing rule = %d, want 404", w.Code)
	}
}

func TestPutRule_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/rules/a.mdc", PutRuleRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPut, "/rules/a.mdc.meta", PutRuleRequest{Content: ptr("x")})
	if w.Code != http.StatusBadRequest {
		t.Errorf("reserved name = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/rules/a.mdc", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json = %d, want 400", rec.Code)
	}
}

func TestPutRule_EmptyContent(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/rules/blank.mdc", map[string]any{"content": "", "description": "placeholder"})
	if w.Code != http.StatusOK {
		t.Fatalf("empty content = %d, body = %s", w.Code, w.Body.String())
	}
	got, err := svc.Get(context.Background(), "blank.mdc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "" || got.Description != "placeholder" {
		t.Errorf("saved = %+v", got)
	}

	w = do(t, router, http.MethodPut, "/rules/blank.mdc", map[string]any{"description": "no body"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("absent content = %d, want 400", w.Code)
	}
}

func TestDeleteRule(t *testing.T) {
	svc, router := testEnv(t, "")
	ctx := context.Background()
	if _, err := svc.Save(ctx, models.Rule{Name: "del.mdc"}, []byte("x")); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodDelete, "/rules/del.mdc", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", w.Code)
	}
	w = do(t, router, http.MethodGet, "/rules/del.mdc", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("after delete = %d, want 404", w.Code)
	}

	// Deleting an absent rule is not an error.
	w = do(t, router, http.MethodDelete, "/rules/del.mdc", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("second delete = %d, want 204", w.Code)
	}
}

func TestListRules_Filters(t *testing.T) {
	svc, router := testEnv(t, "")
	ctx := context.Background()
	for _, r := range []models.Rule{
		{Name: "go-style.mdc", Description: "Go conventions", Tags: []string{"go"}},
		{Name: "react.mdc", Description: "Component rules", Tags: []string{"web"}},
		{Name: "vue.mdc", Tags: []string{"web"}},
	} {
		if _, err := svc.Save(ctx, r, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"/rules", 3},
		{"/rules?tag=web", 2},
		{"/rules?q=react", 1},
		{"/rules?tag=web&q=vue", 1},
		{"/rules?tag=rust", 0},
	}
	for _, tt := range tests {
		w := do(t, router, http.MethodGet, tt.query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tt.query, w.Code)
		}
		var resp RuleListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total != tt.want || len(resp.Rules) != tt.want {
			t.Errorf("%s: total = %d, rules = %d, want %d", tt.query, resp.Total, len(resp.Rules), tt.want)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")
	if _, err := svc.Save(context.Background(), models.Rule{Name: "go.mdc"}, []byte("prefer table driven tests")); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/search?q=table", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Name != "go.mdc" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")
	root := t.TempDir()
	proj, marker := testutil.Project(t, root, "app")

	// Empty store.
	w := do(t, router, http.MethodPost, "/import", ImportRequest{Name: "a.mdc", Context: proj})
	if w.Code != http.StatusConflict {
		t.Errorf("empty store = %d, want 409", w.Code)
	}

	if _, err := svc.Save(context.Background(), models.Rule{Name: "a.mdc"}, []byte("alpha")); err != nil {
		t.Fatal(err)
	}

	w = do(t, router, http.MethodPost, "/import", ImportRequest{Name: "a.mdc", Context: proj})
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	var out ImportOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Destination != filepath.Join(marker, "a.mdc") {
		t.Errorf("destination = %q", out.Destination)
	}
	if got := testutil.ReadFile(t, out.Destination); got != "alpha" {
		t.Errorf("imported content = %q", got)
	}

	w = do(t, router, http.MethodPost, "/import", ImportRequest{Name: "b.mdc", Context: proj})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown rule = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, "/import", ImportRequest{Name: "a.mdc", Context: root})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("no destination = %d, want 422", w.Code)
	}

	w = do(t, router, http.MethodPost, "/import", ImportRequest{Name: "a.mdc"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing context = %d, want 400", w.Code)
	}
}

func TestImport_RuleDeletedMidImportIsNotFound(t *testing.T) {
	svc, _ := testEnv(t, "")
	ctx := context.Background()
	proj, _ := testutil.Project(t, t.TempDir(), "app")
	if _, err := svc.Save(ctx, models.Rule{Name: "a.mdc"}, []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	pick, err := svc.OnImportRequested(ctx, proj)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "a.mdc"); err != nil {
		t.Fatal(err)
	}
	_, err = svc.OnPickMade(ctx, pick, "a.mdc")

	r := httptest.NewRequest(http.MethodPost, "/import", nil)
	w := httptest.NewRecorder()
	writeError(w, r, "import", err)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted rule = %d, want 404", w.Code)
	}
}

func TestStoreUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	testutil.WriteFile(t, file, "x")
	store, err := storage.NewFS(filepath.Join(file, "shared"), testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	svc := ruleservice.New(store, resolver.New(testutil.Marker), ruleservice.WithLogger(testutil.QuietLogger()))
	router := NewRouter(svc, false, "", nil)

	w := do(t, router, http.MethodGet, "/rules", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("list with broken store = %d, want 503", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/rules", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthMiddleware_HeaderForms(t *testing.T) {
	_, router := testEnv(t, "secret123")
	cases := []struct {
		header string
		want   int
	}{
		{"Bearer secret123", http.StatusOK},
		{"bearer secret123", http.StatusOK},
		{"Bearer  secret123 ", http.StatusOK},
		{"Basic secret123", http.StatusUnauthorized},
		{"Bearer", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer secret1234", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("Authorization", tc.header)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("Authorization %q = %d, want %d", tc.header, w.Code, tc.want)
		}
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_NotMountedWithoutHandler(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("events without handler = %d, want 404", w.Code)
	}
}
