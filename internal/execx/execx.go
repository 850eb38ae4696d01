// Package execx defines the command runner abstraction used by every part of
// the tool that shells out to external programs (pio, the Xtensa binutils).
// Stage handlers depend on the Runner interface so tests can substitute a
// recorded fake instead of spawning real processes.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/espforge/espforge/internal/ctxlog"
)

// Result holds the captured outcome of a single external command.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code. 0 indicates success.
	ExitCode int
}

// Runner executes external commands on behalf of stage handlers.
type Runner interface {
	// Run executes name with args in dir. A non-zero exit code is returned
	// as an *ExitError so callers can surface the captured stderr.
	Run(ctx context.Context, dir string, name string, args ...string) (*Result, error)
}

// ExitError reports a command that started successfully but exited non-zero.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   []byte
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, bytes.TrimSpace(e.Stderr))
}

// Local runs commands on the host with the inherited environment plus any
// extra variables.
type Local struct {
	// ExtraEnv entries are appended to the inherited environment in KEY=VALUE form.
	ExtraEnv []string
}

// NewLocal creates a Runner that executes commands on the local host.
func NewLocal() *Local {
	return &Local{}
}

// Run implements the Runner interface.
func (l *Local) Run(ctx context.Context, dir string, name string, args ...string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running external command.", "name", name, "args", args, "dir", dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), l.ExtraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			logger.Debug("Command exited non-zero.", "name", name, "code", result.ExitCode)
			return result, &ExitError{Name: name, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		// The command never started (not found, permission, canceled context).
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}

	logger.Debug("Command finished.", "name", name)
	return result, nil
}

// LookPath resolves a program name against PATH. It exists on the package so
// callers do not import os/exec directly alongside the Runner abstraction.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
