package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RuleRow represents a row in the rules table.
type RuleRow struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Globs       []string  `json:"globs"`
	AlwaysApply bool      `json:"always_apply"`
	Checksum    string    `json:"checksum"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

// UpsertRule inserts or replaces a rule and its FTS entry within a transaction.
func (db *DB) UpsertRule(r RuleRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(nonNil(r.Tags))
	globsJSON, _ := json.Marshal(nonNil(r.Globs))

	_, err = tx.Exec(`
		INSERT INTO rules (name, description, tags, globs, always_apply, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description  = excluded.description,
			tags         = excluded.tags,
			globs        = excluded.globs,
			always_apply = excluded.always_apply,
			checksum     = excluded.checksum,
			body         = excluded.body,
			updated_at   = excluded.updated_at
	`, r.Name, r.Description, string(tagsJSON), string(globsJSON), r.AlwaysApply, r.Checksum, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert rule: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, r.Name, r.Description, body, r.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRule removes a rule and its FTS entry.
func (db *DB) DeleteRule(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, name)
	if _, err := tx.Exec(`DELETE FROM rules WHERE name = ?`, name); err != nil {
		return fmt.Errorf("index: delete rule: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a rule, or empty string if not found.
func (db *DB) GetChecksum(name string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM rules WHERE name = ?`, name).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns name → checksum for every catalogued rule.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, checksum FROM rules`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// ListRules returns catalogued rules ordered by name, optionally filtered by tag.
func (db *DB) ListRules(tag string) ([]RuleRow, error) {
	query := `SELECT name, description, tags, globs, always_apply, checksum, updated_at FROM rules`
	var args []any
	if tag != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM json_each(rules.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}
	query += ` ORDER BY name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list rules: %w", err)
	}
	defer rows.Close()

	var out []RuleRow
	for rows.Next() {
		var (
			r                 RuleRow
			tagsRaw, globsRaw string
		)
		if err := rows.Scan(&r.Name, &r.Description, &tagsRaw, &globsRaw, &r.AlwaysApply, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsRaw), &r.Tags)
		_ = json.Unmarshal([]byte(globsRaw), &r.Globs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
