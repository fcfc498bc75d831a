// Package scripts holds the named robot sequences and the HTTP routes that trigger them.
package scripts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/device"
)

// Plan is the concrete list of steps built for one event.
type Plan struct {
	Steps   []device.Step
	Cleanup *device.Step
}

// Script is a named sequence bound to a webhook route.
type Script interface {
	Kind() string
	Path() string
	Schema() command.Schema
	Build(ev command.Event) (Plan, error)
}

// SimpleScript is the standard Script implementation
type SimpleScript struct {
	kind     string
	path     string
	required []string
	build    func(ev command.Event) (Plan, error)
}

// NewScript creates a script from a build function.
func NewScript(kind, path string, required []string, build func(ev command.Event) (Plan, error)) *SimpleScript {
	return &SimpleScript{
		kind:     kind,
		path:     path,
		required: append([]string(nil), required...),
		build:    build,
	}
}

// Fixed creates a script whose steps do not depend on the event.
func Fixed(kind, path string, steps []device.Step, cleanup *device.Step) *SimpleScript {
	plan := Plan{Steps: append([]device.Step(nil), steps...), Cleanup: cleanup}
	return NewScript(kind, path, nil, func(command.Event) (Plan, error) {
		return plan, nil
	})
}

func (s *SimpleScript) Kind() string { return s.kind }
func (s *SimpleScript) Path() string { return s.path }

func (s *SimpleScript) Schema() command.Schema {
	return command.Schema{Kind: s.kind, Required: s.required}
}

func (s *SimpleScript) Build(ev command.Event) (Plan, error) {
	return s.build(ev)
}

// Registry holds all registered scripts
type Registry struct {
	mu      sync.RWMutex
	scripts map[string]Script
	paths   map[string]string
}

// NewRegistry creates a new script registry
func NewRegistry() *Registry {
	return &Registry{
		scripts: make(map[string]Script),
		paths:   make(map[string]string),
	}
}

// Register adds a script to the registry. Kinds and paths must be unique.
func (r *Registry) Register(s Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scripts[s.Kind()]; exists {
		return fmt.Errorf("script %q already registered", s.Kind())
	}
	if s.Path() != "" {
		if !strings.HasPrefix(s.Path(), "/") {
			return fmt.Errorf("script %q: path %q must start with /", s.Kind(), s.Path())
		}
		if other, exists := r.paths[s.Path()]; exists {
			return fmt.Errorf("path %s already used by script %q", s.Path(), other)
		}
		r.paths[s.Path()] = s.Kind()
	}

	r.scripts[s.Kind()] = s
	return nil
}

// Get retrieves a script by kind
func (r *Registry) Get(kind string) (Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.scripts[kind]
	return s, exists
}

// Scripts returns all registered scripts ordered by path
func (r *Registry) Scripts() []Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Script, 0, len(r.scripts))
	for _, s := range r.scripts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path() != out[j].Path() {
			return out[i].Path() < out[j].Path()
		}
		return out[i].Kind() < out[j].Kind()
	})
	return out
}
