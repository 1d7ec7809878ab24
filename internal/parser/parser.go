// Package parser extracts YAML frontmatter from rule files (the Cursor .mdc
// format) so the catalog can describe rules that carry no sidecar metadata.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds the recognized rule frontmatter fields.
type Frontmatter struct {
	Description string
	Globs       []string
	AlwaysApply bool
	Tags        []string
}

type rawFrontmatter struct {
	Description string   `yaml:"description"`
	Globs       any      `yaml:"globs"`
	AlwaysApply bool     `yaml:"alwaysApply"`
	Tags        []string `yaml:"tags"`
}

// Result holds the output of parsing a rule file.
type Result struct {
	Frontmatter Frontmatter
	Body        string
	Title       string
}

// Parse splits frontmatter from body. Content without frontmatter, or with
// frontmatter that is not valid YAML, is returned entirely as body.
func Parse(data []byte) *Result {
	raw, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: Frontmatter{
			Description: strings.TrimSpace(raw.Description),
			Globs:       normalizeGlobs(raw.Globs),
			AlwaysApply: raw.AlwaysApply,
			Tags:        raw.Tags,
		},
		Body:  body,
		Title: firstHeading(body),
	}
}

// Summary returns the best one-line description of a rule: the frontmatter
// description, else the first heading.
func (r *Result) Summary() string {
	if r.Frontmatter.Description != "" {
		return r.Frontmatter.Description
	}
	return r.Title
}

func splitFrontmatter(data []byte) (rawFrontmatter, string) {
	const delim = "---"
	var fm rawFrontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return rawFrontmatter{}, string(data)
	}
	return fm, body
}

// normalizeGlobs accepts the forms editors write: a YAML list, or a single
// comma-separated string.
func normalizeGlobs(raw any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
