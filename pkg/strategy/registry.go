package strategy

import (
	"fmt"
	"sort"
)

// Registry maps strategy names to configuration overrides.
type Registry map[string]Option

// Lookup returns the override for name.
func (r Registry) Lookup(name string) (Option, bool) {
	if r == nil {
		return DoesNotAllowRequests, false
	}
	o, ok := r[name]
	return o, ok
}

// Validate checks that no override carries undefined bits.
func (r Registry) Validate() error {
	for _, name := range r.Names() {
		if o := r[name]; !o.Valid() {
			return fmt.Errorf("strategy %q: %w: 0x%x", name, ErrUnknownOption, uint32(o&^Known))
		}
	}
	return nil
}

// Names returns the strategy names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
