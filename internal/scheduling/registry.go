package scheduling

import "fmt"

// Registry resolves a backend variant to its implementation. Orchestrators
// dispatch once through the registry instead of re-checking the variant at
// every step.
type Registry struct {
	backends map[Variant]Backend
}

// NewRegistry creates a registry over the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[Variant]Backend, len(backends))}
	for _, b := range backends {
		if b == nil {
			continue
		}
		r.backends[b.Name()] = b
	}
	return r
}

// For returns the backend owning the given variant.
func (r *Registry) For(v Variant) (Backend, error) {
	b, ok := r.backends[v]
	if !ok {
		return nil, fmt.Errorf("scheduling: no backend registered for variant %q", v)
	}
	return b, nil
}

// Has reports whether a backend is registered for the variant.
func (r *Registry) Has(v Variant) bool {
	_, ok := r.backends[v]
	return ok
}
