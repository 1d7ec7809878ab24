package ruleservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Notifier surfaces user-facing messages.
type Notifier interface {
	Info(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// LogNotifier reports messages through a logger. It is the notifier used by
// the long-running watch mode.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs under the "notify" component.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Info logs msg at info level.
func (n *LogNotifier) Info(ctx context.Context, msg string) {
	n.logger.InfoContext(ctx, "notify: "+msg)
}

// Error logs msg at error level.
func (n *LogNotifier) Error(ctx context.Context, msg string) {
	n.logger.ErrorContext(ctx, "notify: "+msg)
}

// WriterNotifier prints messages for interactive commands.
type WriterNotifier struct {
	Out io.Writer
	Err io.Writer
}

// Info prints msg on its own line to Out.
func (n WriterNotifier) Info(_ context.Context, msg string) {
	fmt.Fprintln(n.Out, msg)
}

// Error prints msg to Err with an "error: " prefix.
func (n WriterNotifier) Error(_ context.Context, msg string) {
	fmt.Fprintln(n.Err, "error: "+msg)
}
