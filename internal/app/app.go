package app

import (
	"io"
	"log/slog"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/execx"
	"github.com/espforge/espforge/internal/registry"
	"github.com/espforge/espforge/stages"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. Command output goes to outW; logs go to errW so linkplan's
// JSON stays machine-readable.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	loader   config.Loader
	runner   execx.Runner
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW, errW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, errW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = stages.CoreModules()
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All stage modules registered.", "count", len(modules))

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
		loader:   loader,
		runner:   &execx.Local{},
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// SetCommandRunner swaps the external command runner. Tests use this to keep
// pio and ar from actually executing.
func (a *App) SetCommandRunner(runner execx.Runner) {
	a.runner = runner
}
