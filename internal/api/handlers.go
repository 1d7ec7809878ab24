package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rulesync/internal/index"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/ruleservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *ruleservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *ruleservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ruleName extracts the rule name from the URL, decoding escaped characters.
func ruleName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListRules handles GET /api/rules.
//
//	@Summary		List rules with optional fuzzy and tag filtering
//	@Tags			rules
//	@Produce		json
//	@Param			q		query		string	false	"Fuzzy filter on name and description"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	RuleListResponse
//	@Security		BearerAuth
//	@Router			/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rules, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, "list rules", err)
		return
	}
	rules = ruleservice.Filter(ruleservice.FilterTag(rules, q.Get("tag")), q.Get("q"))
	if rules == nil {
		rules = []models.Rule{}
	}
	writeJSON(w, http.StatusOK, RuleListResponse{Rules: rules, Total: len(rules)})
}

// GetRule handles GET /api/rules/{name}.
//
//	@Summary		Get a single rule with metadata and content
//	@Tags			rules
//	@Produce		json
//	@Param			name	path		string	true	"Rule name"
//	@Success		200		{object}	RuleDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{name} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.Get(r.Context(), ruleName(r))
	if err != nil {
		writeError(w, r, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// GetRuleContent handles GET /api/rules/{name}/content.
//
//	@Summary		Get the raw content of a rule
//	@Tags			rules
//	@Produce		plain
//	@Param			name	path		string	true	"Rule name"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{name}/content [get]
func (h *Handler) GetRuleContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.Store().ReadContent(ruleName(r))
	if err != nil {
		writeError(w, r, "read rule", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// PutRule handles PUT /api/rules/{name}.
//
//	@Summary		Create or replace a rule and its metadata
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Rule name"
//	@Param			body	body		PutRuleRequest	true	"Rule content and metadata"
//	@Success		200		{object}	RuleDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{name} [put]
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PutRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	rule := models.Rule{Name: ruleName(r), Description: req.Description, Tags: req.Tags}
	saved, err := h.svc.Save(r.Context(), rule, []byte(*req.Content))
	if err != nil {
		writeError(w, r, "save rule", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteRule handles DELETE /api/rules/{name}.
//
//	@Summary		Delete a rule and its metadata
//	@Tags			rules
//	@Param			name	path	string	true	"Rule name"
//	@Success		204		"Rule deleted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{name} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), ruleName(r)); err != nil {
		writeError(w, r, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search rule names, descriptions, tags and content
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Import handles POST /api/import.
//
//	@Summary		Copy a shared rule into the nearest project rules directory
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Rule name and context path"
//	@Success		200		{object}	ImportOutcome
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" || req.Context == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and context are required"))
		return
	}
	pick, err := h.svc.OnImportRequested(r.Context(), req.Context)
	if err != nil {
		writeError(w, r, "import", err)
		return
	}
	out, err := h.svc.OnPickMade(r.Context(), pick, req.Name)
	if err != nil {
		writeError(w, r, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
