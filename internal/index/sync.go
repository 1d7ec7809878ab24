package index

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/parser"
	"github.com/starford/rulesync/internal/storage"
)

// Sync walks the store and brings the catalog up to date:
//   - new/changed rules are parsed and upserted
//   - rules removed from the store are deleted from the catalog
func Sync(db Catalog, store storage.Provider, logger *slog.Logger) error {
	rules, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		seen[r.Name] = struct{}{}

		content, err := store.ReadContent(r.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("name", r.Name), slog.String("error", err.Error()))
			continue
		}
		if checksums[r.Name] == Checksum(r, content) {
			continue
		}
		if err := IndexRule(db, r, content); err != nil {
			logger.Warn("sync: index failed", slog.String("name", r.Name), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("name", r.Name))
		}
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := seen[name]; !ok {
			if err := db.DeleteRule(name); err != nil {
				logger.Warn("sync: delete failed", slog.String("name", name), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("name", name))
			}
		}
	}

	return nil
}

// IndexRule parses content and upserts the rule into the catalog. Sidecar
// metadata wins; frontmatter fills in what the sidecar leaves empty.
func IndexRule(db Catalog, r models.Rule, content string) error {
	res := parser.Parse([]byte(content))

	description := r.Description
	if description == "" {
		description = res.Summary()
	}
	tags := r.Tags
	if len(tags) == 0 {
		tags = res.Frontmatter.Tags
	}

	return db.UpsertRule(RuleRow{
		Name:        r.Name,
		Description: description,
		Tags:        tags,
		Globs:       res.Frontmatter.Globs,
		AlwaysApply: res.Frontmatter.AlwaysApply,
		Checksum:    Checksum(r, content),
		UpdatedAt:   r.LastModified,
	}, res.Body)
}

// Checksum returns the hex SHA-256 over a rule's content and sidecar
// metadata, so that metadata-only edits are picked up by Sync.
func Checksum(r models.Rule, content string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(r.Description))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(r.Tags, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
