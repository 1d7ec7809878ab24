package internal

import (
	"log/slog"

	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/ruleservice"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	notifier ruleservice.Notifier
	publish  func(models.SyncEvent)
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger sets the application logger. Without it Run logs JSON to stdout.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithNotifier sets the notifier for user-facing sync and import messages.
func WithNotifier(n ruleservice.Notifier) Option {
	return func(a *application) {
		a.notifier = n
	}
}

// WithPublisher sets a callback for rule change events.
func WithPublisher(fn func(models.SyncEvent)) Option {
	return func(a *application) {
		a.publish = fn
	}
}
