package app

import (
	"errors"
	"fmt"

	"github.com/espforge/espforge/internal/config"
)

// Commands the application dispatches on.
const (
	CommandPrecompile = "precompile"
	CommandPackage    = "package"
	CommandLinkplan   = "linkplan"
	CommandBoards     = "boards"
	CommandCheck      = "check"
)

// Boards subcommands.
const (
	BoardsList     = "list"
	BoardsValidate = "validate"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command string

	// PlatformDir is the platform checkout every command operates on.
	PlatformDir string

	// ManifestPath is the precompile manifest file or directory.
	ManifestPath string

	// BoardID and Framework select the linkplan target.
	BoardID   string
	Framework string

	// BoardsAction is list or validate.
	BoardsAction string

	// OutputDir receives the release archive.
	OutputDir string

	// Workers overrides the manifest's job count when positive.
	Workers int

	Force    bool
	KeepTemp bool

	UploadPort     string
	UploadProtocol string

	// RegistryURL overrides the PlatformIO registry endpoint. Empty selects
	// the public registry.
	RegistryURL string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and applies per-command requirements.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PlatformDir == "" {
		return nil, errors.New("platform-dir is a required configuration field and cannot be empty")
	}

	switch cfg.Command {
	case CommandPrecompile:
		if cfg.ManifestPath == "" {
			return nil, errors.New("precompile requires a manifest path")
		}
	case CommandLinkplan:
		if cfg.BoardID == "" {
			return nil, errors.New("linkplan requires a board")
		}
		if cfg.Framework != config.FrameworkArduino && cfg.Framework != config.FrameworkESPIDF {
			return nil, fmt.Errorf("linkplan: unsupported framework %q", cfg.Framework)
		}
	case CommandBoards:
		if cfg.BoardsAction != BoardsList && cfg.BoardsAction != BoardsValidate {
			return nil, fmt.Errorf("boards: unknown action %q, expected %s or %s",
				cfg.BoardsAction, BoardsList, BoardsValidate)
		}
	case CommandPackage, CommandCheck:
		// Everything needed comes from platform.json.
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}

	return &cfg, nil
}
