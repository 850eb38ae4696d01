// Package testutil provides shared helpers for the package tests: a
// thread-safe log buffer, a context with a test logger, a fixture writer,
// and a recorded fake command runner so tests never spawn real processes.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/execx"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a background context carrying a text logger that writes
// into the returned buffer.
func Context() (context.Context, *SafeBuffer) {
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// WriteFiles writes the given relative-path/content pairs into a fresh
// temporary directory and returns its root.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	tmpDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return tmpDir
}

// Call records one command the FakeRunner received.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// FakeRunner implements execx.Runner, recording every call and replying with
// scripted results.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call

	// Results maps a command name to the error its invocation returns.
	// Commands without an entry succeed with empty output.
	Results map[string]error

	// OnRun, when set, runs for each call after recording, letting tests
	// fabricate side effects such as build output files.
	OnRun func(call Call) error
}

// NewFakeRunner creates a FakeRunner where every command succeeds.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Results: make(map[string]error)}
}

// Run implements the execx.Runner interface.
func (f *FakeRunner) Run(ctx context.Context, dir string, name string, args ...string) (*execx.Result, error) {
	call := Call{Dir: dir, Name: name, Args: args}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.OnRun != nil {
		if err := f.OnRun(call); err != nil {
			return nil, err
		}
	}
	if err := f.Results[filepath.Base(name)]; err != nil {
		return nil, err
	}
	return &execx.Result{}, nil
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CommandLines renders the recorded calls as space-joined strings, which
// keeps ordering assertions readable.
func (f *FakeRunner) CommandLines() []string {
	var lines []string
	for _, c := range f.Calls() {
		lines = append(lines, strings.Join(append([]string{c.Name}, c.Args...), " "))
	}
	return lines
}
