// Package picker lets the user choose a rule from an interactive list.
package picker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/models"
)

// Picker renders a select prompt on the terminal.
type Picker struct {
	title       string
	interactive func() bool
}

// New creates a picker with the given prompt title.
func New(title string) *Picker {
	return &Picker{
		title:       title,
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Options builds the select options for rules. Rules with a description show
// it next to the name.
func Options(rules []models.Rule) []huh.Option[string] {
	opts := make([]huh.Option[string], len(rules))
	for i, r := range rules {
		label := r.Name
		if r.Description != "" {
			label = fmt.Sprintf("%s  %s", r.Name, r.Description)
		}
		opts[i] = huh.NewOption(label, r.Name)
	}
	return opts
}

// Pick asks the user for one rule name. An aborted prompt returns "".
func (p *Picker) Pick(ctx context.Context, rules []models.Rule) (string, error) {
	if !p.interactive() {
		return "", apperr.ErrNotInteractive
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(p.title).
				Options(Options(rules)...).
				Filtering(true).
				Value(&choice),
		),
	).WithShowHelp(true)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", nil
		}
		return "", fmt.Errorf("picker: run prompt: %w", err)
	}
	return choice, nil
}
