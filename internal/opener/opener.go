// Package opener launches an external tool on a rule's directory.
package opener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
)

// DefaultCommand opens the directory in GitHub Desktop.
const DefaultCommand = "github {dir}"

// DirPlaceholder is replaced with the directory of the opened file.
const DirPlaceholder = "{dir}"

// Result holds the captured output of a launch.
type Result struct {
	Stdout string
	Stderr string
}

// Opener runs a command template.
type Opener struct {
	command string
	logger  *slog.Logger
}

// New creates an opener for the command template. An empty template selects
// DefaultCommand.
func New(command string, logger *slog.Logger) *Opener {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	return &Opener{command: command, logger: logger}
}

// Args parses the template and expands the directory placeholder in every
// argument. The template is split before expansion, so directories with
// spaces stay a single argument.
func (o *Opener) Args(filePath string) ([]string, error) {
	args, err := shellwords.Parse(o.command)
	if err != nil {
		return nil, fmt.Errorf("opener: parse %q: %w", o.command, err)
	}
	if len(args) == 0 {
		return nil, errors.New("opener: empty command")
	}
	dir := filepath.Dir(filePath)
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, DirPlaceholder, dir)
	}
	return args, nil
}

// Open runs the command for filePath and waits for it to exit. A non-empty
// stderr is logged as a warning and returned in Result.
func (o *Opener) Open(ctx context.Context, filePath string) (Result, error) {
	args, err := o.Args(filePath)
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	o.logger.DebugContext(ctx, "opener: run", slog.Any("args", args))
	err = cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, fmt.Errorf("opener: run %s: %w", args[0], err)
	}
	if res.Stderr != "" {
		o.logger.WarnContext(ctx, "opener: stderr", slog.String("output", strings.TrimSpace(res.Stderr)))
	}
	return res, nil
}
