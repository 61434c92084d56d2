package adapters

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry resolves adapters by issuer name. Names are matched case-insensitively.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("register adapter: nil adapter")
	}
	key := normalize(a.Issuer())
	if key == "" {
		return fmt.Errorf("register adapter: issuer name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIssuer, key)
	}
	r.adapters[key] = a
	return nil
}

// Resolve returns the adapter for issuer or ErrAdapterNotFound.
func (r *Registry) Resolve(issuer string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalize(issuer)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAdapterNotFound, issuer)
	}
	return a, nil
}

// Issuers lists registered issuer names in sorted order.
func (r *Registry) Issuers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
