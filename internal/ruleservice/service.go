// Package ruleservice coordinates the shared rule store, the directory
// resolver and the optional catalog. It exposes the sync and import entry
// points used by the watcher, the CLI, the HTTP API and the MCP server.
package ruleservice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/sahilm/fuzzy"

	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/index"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/resolver"
	"github.com/starford/rulesync/internal/storage"
)

// RuleDetail is a rule together with its content.
type RuleDetail struct {
	models.Rule
	Content string `json:"content"`
}

// Service coordinates store, resolver and catalog operations.
type Service struct {
	store    storage.Provider
	resolver *resolver.Resolver
	catalog  index.Catalog
	notifier Notifier
	publish  func(models.SyncEvent)
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog enables catalog maintenance and indexed search.
func WithCatalog(c index.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithNotifier sets the user-facing notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher sets a callback invoked after every successful change.
func WithPublisher(fn func(models.SyncEvent)) Option {
	return func(s *Service) { s.publish = fn }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service over store using r to locate import destinations.
func New(store storage.Provider, r *resolver.Resolver, opts ...Option) *Service {
	s := &Service{store: store, resolver: r}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	if s.publish == nil {
		s.publish = func(models.SyncEvent) {}
	}
	return s
}

// Store returns the shared store.
func (s *Service) Store() storage.Provider { return s.store }

// List returns every rule in the shared store.
func (s *Service) List(_ context.Context) ([]models.Rule, error) {
	return s.store.List()
}

// Get returns a rule with its content.
func (s *Service) Get(_ context.Context, name string) (*RuleDetail, error) {
	rule, ok, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ruleservice: %s: %w", name, apperr.ErrNotFound)
	}
	content, err := s.store.ReadContent(name)
	if err != nil {
		return nil, err
	}
	return &RuleDetail{Rule: rule, Content: content}, nil
}

// Save writes a rule to the shared store and refreshes its catalog entry.
func (s *Service) Save(ctx context.Context, rule models.Rule, content []byte) (*RuleDetail, error) {
	if err := s.store.Save(rule, content); err != nil {
		return nil, err
	}
	s.reindex(ctx, rule.Name)
	s.publish(models.SyncEvent{Kind: "saved", Name: rule.Name})
	return s.Get(ctx, rule.Name)
}

// Delete removes a rule from the shared store and the catalog.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(name); err != nil {
		return err
	}
	if s.catalog != nil {
		if err := s.catalog.DeleteRule(name); err != nil {
			s.logger.WarnContext(ctx, "catalog: delete failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	s.publish(models.SyncEvent{Kind: "deleted", Name: name})
	return nil
}

// Filter returns the rules whose name or description fuzzy-match query,
// best match first. An empty query returns rules unchanged.
func Filter(rules []models.Rule, query string) []models.Rule {
	if query == "" {
		return rules
	}
	targets := make([]string, len(rules))
	for i, r := range rules {
		targets[i] = r.Name + " " + r.Description
	}
	matches := fuzzy.Find(query, targets)
	out := make([]models.Rule, 0, len(matches))
	for _, m := range matches {
		out = append(out, rules[m.Index])
	}
	return out
}

// FilterTag returns the rules carrying tag. An empty tag returns rules unchanged.
func FilterTag(rules []models.Rule, tag string) []models.Rule {
	if tag == "" {
		return rules
	}
	var out []models.Rule
	for _, r := range rules {
		if slices.Contains(r.Tags, tag) {
			out = append(out, r)
		}
	}
	return out
}

// Search queries the catalog. Without a catalog it falls back to a fuzzy
// match over the store listing.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.catalog != nil {
		return s.catalog.Search(query, limit)
	}
	rules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := Filter(rules, query)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]index.SearchResult, len(matched))
	for i, r := range matched {
		out[i] = index.SearchResult{Name: r.Name, Description: r.Description}
	}
	return out, nil
}

// Reindex reconciles the catalog with the store. It is a no-op without a catalog.
func (s *Service) Reindex(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}
	if err := index.Sync(s.catalog, s.store, s.logger); err != nil {
		return fmt.Errorf("ruleservice: reindex: %w", err)
	}
	s.logger.DebugContext(ctx, "catalog: reindexed")
	return nil
}

// reindex refreshes one catalog entry. Catalog failures are logged only; the
// store remains the source of truth.
func (s *Service) reindex(ctx context.Context, name string) {
	if s.catalog == nil {
		return
	}
	rule, ok, err := s.store.Get(name)
	if err != nil || !ok {
		return
	}
	content, err := s.store.ReadContent(name)
	if err == nil {
		err = index.IndexRule(s.catalog, rule, content)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "catalog: index failed", slog.String("name", name), slog.String("error", err.Error()))
	}
}

// SyncFile copies src into the shared store directory under its base name
// and returns the destination path.
func (s *Service) SyncFile(ctx context.Context, src string) (string, error) {
	dst, err := storage.CopyFile(src, s.store.Dir())
	if err != nil {
		return "", err
	}
	name := filepath.Base(dst)
	s.reindex(ctx, name)
	s.logger.InfoContext(ctx, "sync: copied", slog.String("source", src), slog.String("destination", dst))
	s.publish(models.SyncEvent{Kind: "synced", Name: name, Source: src, Destination: dst})
	return dst, nil
}

// OnWatchedFileChanged syncs path into the shared store. Failures are
// reported to the notifier and never returned, so a long-lived watch loop
// keeps running.
func (s *Service) OnWatchedFileChanged(ctx context.Context, path string) {
	if _, err := s.SyncFile(ctx, path); err != nil {
		s.logger.ErrorContext(ctx, "sync: failed", slog.String("source", path), slog.String("error", err.Error()))
		s.notifier.Error(ctx, fmt.Sprintf("Failed to sync %s: %v", filepath.Base(path), err))
	}
}
