// Package registry stores executable algorithms, both built-in and
// loaded from candidate source through a restricted interpreter.
package registry

import (
	"sort"
	"sync"
	"time"

	"wayfinder/internal/contract"
	"wayfinder/internal/grid"
	"wayfinder/internal/pathfind"
)

// Info describes one registered algorithm.
type Info struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`
	Builtin     bool      `json:"builtin"`
	CreatedAt   time.Time `json:"created_at"`
}

type entry struct {
	info Info
	ctor contract.Constructor
}

// Registry is safe for concurrent use; all state sits behind one
// interior mutex and is injected where needed, never global.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: map[string]*entry{}, now: time.Now}
}

// NewWithBuiltins returns a registry pre-seeded with the baseline
// algorithms.
func NewWithBuiltins() *Registry {
	r := New()
	descriptions := map[string]string{
		"bfs":      "breadth-first search, shortest path on unit grids",
		"dijkstra": "distance-ordered relaxation over the grid graph",
		"astar":    "best-first search guided by a manhattan heuristic",
	}
	for name, ctor := range pathfind.Builtins() {
		r.Register(name, ctor, descriptions[name])
	}
	return r
}

// WithClock replaces the registry clock, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register installs a native constructor. Last writer wins.
func (r *Registry) Register(name string, ctor contract.Constructor, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{
		info: Info{Name: name, Description: description, Builtin: true, CreatedAt: r.now()},
		ctor: ctor,
	}
}

// Load compiles candidate source and registers it under name. Returns
// false when the source does not evaluate or no declaration satisfies
// the contract; it never panics outward.
func (r *Registry) Load(name, source, description string) bool {
	ctor, err := compile(source)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{
		info: Info{Name: name, Description: description, Source: source, CreatedAt: r.now()},
		ctor: ctor,
	}
	return true
}

// LoadErr is Load with the underlying reason, for surfaces that can
// show it.
func (r *Registry) LoadErr(name, source, description string) error {
	ctor, err := compile(source)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{
		info: Info{Name: name, Description: description, Source: source, CreatedAt: r.now()},
		ctor: ctor,
	}
	return nil
}

// Get returns the info for one algorithm.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// List returns all registered algorithms sorted by name.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove deletes an algorithm. Built-ins can be removed too; reloading
// requires a restart or Register.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// Execute runs the named algorithm over a raw grid. Unknown cell codes
// become empty cells, and any fault inside the algorithm degrades to
// empty results. Execute never panics.
func (r *Registry) Execute(name string, width, height int, raw [][]int, start, end grid.Point) (path, visited []grid.Point) {
	path, visited = []grid.Point{}, []grid.Point{}

	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return path, visited
	}

	algo := e.ctor(width, height)
	if algo == nil {
		return path, visited
	}
	g := grid.FromRaw(raw)
	safe := guarded{inner: algo}
	if p := safe.FindPath(g, start, end); p != nil {
		path = p
	}
	if v := safe.VisitedOrder(); v != nil {
		visited = v
	}
	return path, visited
}
