package mcpserver

// StoreLayoutURI identifies the store layout resource.
const StoreLayoutURI = "rulesync://store-layout"

// StoreLayout describes how rules are stored on disk so that LLM consumers
// can create rules that sync and import cleanly.
const StoreLayout = `# rulesync Store Layout

The shared store is a single flat directory (default ` + "`~/.cursor-rules`" + `).
Projects keep their rules in a marker directory (default ` + "`.cursor/rules`" + `).

## Files

Every rule is one primary file plus an optional sidecar:

` + "```" + `
<name>         rule content, copied verbatim into projects
<name>.meta    JSON metadata (optional)
` + "```" + `

The sidecar is pretty-printed JSON with two-space indentation. Absent values
are written as ` + "`null`" + `:

` + "```" + `json
{
  "description": "Go formatting conventions",
  "tags": ["go", "style"]
}
` + "```" + `

## Rules

1. **Names are plain file names.** No path separators, not ` + "`.`" + ` or ` + "`..`" + `,
   and never ending in ` + "`.meta`" + `.
2. **Content is copied byte for byte.** Importing a rule copies only the
   primary file; the sidecar stays in the shared store.
3. **Saving replaces.** Content and metadata are rewritten in full.
4. **Frontmatter is optional.** When a rule has no sidecar, a YAML frontmatter
   ` + "`description`" + ` and ` + "`tags`" + ` are used for search:

` + "```" + `markdown
---
description: Go formatting conventions
globs: "**/*.go"
alwaysApply: false
---

Always run gofmt before committing.
` + "```" + `

## Import

` + "`import_rule`" + ` copies a rule into the nearest directory, walking upward from the
context path, that contains the marker directory. If no ancestor has one, the
import fails and nothing is written.
`
