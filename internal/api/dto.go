package api

import (
	"github.com/starford/rulesync/internal/index"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/ruleservice"
)

// PutRuleRequest is the request body for saving a rule. Content may be
// empty but must be present.
type PutRuleRequest struct {
	Content     *string  `json:"content" example:"Always run gofmt." validate:"required"`
	Description string   `json:"description,omitempty" example:"Go formatting"`
	Tags        []string `json:"tags,omitempty" example:"go,style"`
}

// ImportRequest is the request body for importing a rule into a project.
type ImportRequest struct {
	Name    string `json:"name" example:"go-style.mdc" validate:"required"`
	Context string `json:"context" example:"/home/me/code/app/main.go" validate:"required"`
}

// RuleDetail is the full rule response type (aliased from the domain layer).
type RuleDetail = ruleservice.RuleDetail

// ImportOutcome is the import response type (aliased from the domain layer).
type ImportOutcome = ruleservice.ImportOutcome

// RuleListResponse wraps rule listings.
type RuleListResponse struct {
	Rules []models.Rule `json:"rules" validate:"required"`
	Total int           `json:"total" example:"3" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
