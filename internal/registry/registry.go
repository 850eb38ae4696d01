// Package registry holds the stage handlers available to the pipeline for a
// single application instance. Stage packages register their handlers under
// a well-known name; the pipeline plan references handlers by that name and
// the registry is validated against the plan before execution starts.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface every stage package implements to be registered.
type Module interface {
	Register(r *Registry)
}

// Handler is one registered stage implementation. Input carries the
// stage-specific parameter struct built by the pipeline planner.
type Handler struct {
	Fn func(ctx context.Context, input any) error
}

// Registry maps handler names to their implementations.
type Registry struct {
	handlers map[string]*Handler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]*Handler),
	}
}

// RegisterHandler registers a stage handler under name. Registering the same
// name twice is a programmer error.
func (r *Registry) RegisterHandler(name string, handler *Handler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("stage handler with name '%s' already registered", name))
	}
	if handler == nil || handler.Fn == nil {
		panic(fmt.Sprintf("stage handler '%s' has no function", name))
	}
	slog.Debug("Registering stage handler.", "name", name)
	r.handlers[name] = handler
}

// Handler looks up a registered handler by name.
func (r *Registry) Handler(name string) (*Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names, sorted. Primarily for logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every required handler name is registered. A mismatch
// between the pipeline plan and the registered modules is a startup error.
func (r *Registry) Validate(required []string) error {
	for _, name := range required {
		if _, ok := r.handlers[name]; !ok {
			return fmt.Errorf("pipeline references unregistered stage handler '%s'", name)
		}
	}
	return nil
}
