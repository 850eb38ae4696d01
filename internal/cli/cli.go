package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/espforge/espforge/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("espforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
espforge - ESP32 PlatformIO platform toolkit with pre-compiled libraries.

Usage:
  espforge [options] COMMAND

Commands:
  precompile        Run the library pre-compilation pipeline from a manifest.
  package           Zip the platform tree for release.
  linkplan          Print the framework link plan for a board as JSON.
  boards [ACTION]   List (default) or validate the board descriptors.
  check             Verify platform.json package versions against the registry.

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "precompile.hcl", "Path to the precompile manifest file or directory.")
	platformDirFlag := flagSet.String("platform-dir", ".", "Path to the platform checkout.")
	boardFlag := flagSet.String("board", "", "Board ID for the linkplan command.")
	frameworkFlag := flagSet.String("framework", "arduino", "Framework for the linkplan command. Options: 'arduino' or 'espidf'.")
	outputFlag := flagSet.String("output", "", "Output directory for the release archive.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent pipeline workers. 0 uses the manifest setting.")
	forceFlag := flagSet.Bool("force", false, "Overwrite an existing release archive.")
	keepTempFlag := flagSet.Bool("keep-temp", false, "Keep the staging directories after a successful precompile run.")
	uploadPortFlag := flagSet.String("upload-port", "", "Serial port, IP address, or mDNS host for the upload plan.")
	uploadProtocolFlag := flagSet.String("upload-protocol", "", "Upload protocol override for the upload plan.")
	registryURLFlag := flagSet.String("registry-url", "", "PlatformIO registry endpoint override. Empty uses the public registry.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	command := flagSet.Arg(0)

	boardsAction := app.BoardsList
	if command == app.CommandBoards && flagSet.NArg() > 1 {
		boardsAction = flagSet.Arg(1)
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		Command:        command,
		PlatformDir:    *platformDirFlag,
		ManifestPath:   *manifestFlag,
		BoardID:        *boardFlag,
		Framework:      strings.ToLower(*frameworkFlag),
		BoardsAction:   boardsAction,
		OutputDir:      *outputFlag,
		Workers:        *workersFlag,
		Force:          *forceFlag,
		KeepTemp:       *keepTempFlag,
		UploadPort:     *uploadPortFlag,
		UploadProtocol: *uploadProtocolFlag,
		RegistryURL:    *registryURLFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
