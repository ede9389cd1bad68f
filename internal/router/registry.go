package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registry errors.
var (
	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("router: tool already registered")

	// ErrInvalidEntry is returned for entries without a name or handler.
	ErrInvalidEntry = errors.New("router: invalid registry entry")
)

// Entry is one registered capability.
type Entry struct {
	Tool     mcp.Tool
	Handler  server.ToolHandlerFunc
	Category Category
}

// Name is the tool's registered name.
func (e Entry) Name() string { return e.Tool.Name }

// Registry holds the capabilities the router may dispatch to. Registration
// happens at startup; afterwards the registry is only read.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry. Duplicate names are rejected.
func (r *Registry) Register(e Entry) error {
	if e.Tool.Name == "" {
		return fmt.Errorf("%w: empty tool name", ErrInvalidEntry)
	}
	if e.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidEntry, e.Tool.Name)
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, e.Tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, e.Tool.Name)
	}
	r.entries[e.Tool.Name] = e
	r.order = append(r.order, e.Tool.Name)
	return nil
}

// MustRegister registers an entry and panics on error. Use it for static
// registration at startup.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", e.Tool.Name, err))
	}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Names returns the names of tools whose category policy allows, sorted.
// A nil policy returns every name.
func (r *Registry) Names(policy Policy) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if policy == nil || policy.Allows(e.Category) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
