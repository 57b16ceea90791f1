package backend

import "fmt"

// Registry resolves configured backend names to adapters, preserving the
// configured priority order.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same name twice is a wiring
// bug and fails loudly.
func (r *Registry) Register(a Adapter) error {
	if _, dup := r.adapters[a.Name()]; dup {
		return fmt.Errorf("backend %q registered twice", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Resolve maps an ordered name list to an ordered adapter list. Unknown
// names are a configuration error.
func (r *Registry) Resolve(names []string) ([]Adapter, error) {
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, ok := r.adapters[name]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		out = append(out, a)
	}
	return out, nil
}
