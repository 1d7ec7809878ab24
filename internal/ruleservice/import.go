package ruleservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/storage"
)

// ImportRequest is the picklist offered to the user for one import.
type ImportRequest struct {
	ContextPath string
	Rules       []models.Rule
}

// Names returns the picklist entries.
func (r *ImportRequest) Names() []string {
	names := make([]string, len(r.Rules))
	for i, rule := range r.Rules {
		names[i] = rule.Name
	}
	return names
}

// ImportOutcome describes the result of a pick.
type ImportOutcome struct {
	Name        string `json:"name,omitempty"`
	Destination string `json:"destination,omitempty"`
	Cancelled   bool   `json:"cancelled"`
}

// Message is the user-facing summary of the outcome.
func (o ImportOutcome) Message() string {
	if o.Cancelled {
		return "Import cancelled"
	}
	return fmt.Sprintf("Imported %s into %s", o.Name, o.Destination)
}

// PickFunc asks the user to choose one of rules. An empty name means cancelled.
type PickFunc func(ctx context.Context, rules []models.Rule) (string, error)

// OnImportRequested lists the shared store and returns the picklist for an
// import anchored at contextPath. An empty store yields ErrNoRules.
func (s *Service) OnImportRequested(ctx context.Context, contextPath string) (*ImportRequest, error) {
	rules, err := s.store.List()
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		s.logger.InfoContext(ctx, "import: store empty", slog.String("dir", s.store.Dir()))
		return nil, apperr.ErrNoRules
	}
	return &ImportRequest{ContextPath: contextPath, Rules: rules}, nil
}

// OnPickMade copies the picked rule into the marker directory nearest to the
// request's context path.
func (s *Service) OnPickMade(ctx context.Context, req *ImportRequest, name string) (ImportOutcome, error) {
	if name == "" {
		return ImportOutcome{Cancelled: true}, nil
	}
	var picked *models.Rule
	for i := range req.Rules {
		if req.Rules[i].Name == name {
			picked = &req.Rules[i]
			break
		}
	}
	if picked == nil {
		return ImportOutcome{}, fmt.Errorf("ruleservice: import %s: %w", name, apperr.ErrNotFound)
	}

	target, ok := s.destination(req.ContextPath)
	if !ok {
		return ImportOutcome{}, fmt.Errorf("ruleservice: import from %s: %w", req.ContextPath, apperr.ErrDestinationMissing)
	}

	// The rule may have been deleted from the store since the picklist was built.
	if _, err := os.Stat(picked.Path); errors.Is(err, os.ErrNotExist) {
		return ImportOutcome{}, fmt.Errorf("ruleservice: import %s: %w", name, apperr.ErrNotFound)
	}
	dst, err := storage.CopyFile(picked.Path, target)
	if err != nil {
		return ImportOutcome{}, err
	}
	s.logger.InfoContext(ctx, "import: copied", slog.String("name", name), slog.String("destination", dst))
	s.publish(models.SyncEvent{Kind: "imported", Name: name, Source: picked.Path, Destination: dst})
	return ImportOutcome{Name: name, Destination: dst}, nil
}

// Import runs a full import: list, pick, copy. Outcomes are reported to the
// notifier. An empty store is reported and treated as a cancelled import.
func (s *Service) Import(ctx context.Context, contextPath string, pick PickFunc) (ImportOutcome, error) {
	req, err := s.OnImportRequested(ctx, contextPath)
	if errors.Is(err, apperr.ErrNoRules) {
		s.notifier.Info(ctx, "No rules found")
		return ImportOutcome{Cancelled: true}, nil
	}
	if err != nil {
		return ImportOutcome{}, err
	}

	name, err := pick(ctx, req.Rules)
	if err != nil {
		return ImportOutcome{}, err
	}

	out, err := s.OnPickMade(ctx, req, name)
	switch {
	case errors.Is(err, apperr.ErrDestinationMissing):
		s.notifier.Error(ctx, "No rules directory found above "+contextPath)
		return out, err
	case err != nil:
		return out, err
	}
	if !out.Cancelled {
		s.notifier.Info(ctx, out.Message())
	}
	return out, nil
}

// destination resolves the nearest marker directory. An existing directory
// is searched from itself; anything else from its parent.
func (s *Service) destination(contextPath string) (string, bool) {
	if info, err := os.Stat(contextPath); err == nil && info.IsDir() {
		return s.resolver.NearestFrom(contextPath)
	}
	return s.resolver.Nearest(contextPath)
}
