// Package registry holds the static catalog of registered generation
// backends. The catalog is built once at process start and never mutated.
package registry

import (
	"fmt"

	"github.com/modelmux/modelmux/pkg/model"
)

// Entry pairs a descriptor with its advisory availability flag for the
// model listing interface.
type Entry struct {
	model.Descriptor
	Available bool `json:"available"`
}

// Registry resolves model ids to descriptors. Lookup never fails: an
// unknown id silently resolves to the default descriptor, which is always
// present and always rule-based, so a request can always be served.
type Registry struct {
	byID      map[string]model.Descriptor
	order     []string
	defaultID string
}

// New builds a registry. The default descriptor must be among descs and
// must be rule-based; that invariant is what lets the dispatcher promise a
// terminal fallback for every request.
func New(descs []model.Descriptor, defaultID string) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("registry: no models configured")
	}
	r := &Registry{byID: make(map[string]model.Descriptor, len(descs)), defaultID: defaultID}
	for _, d := range descs {
		if d.ID == "" {
			return nil, fmt.Errorf("registry: descriptor with empty id")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate model id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	def, ok := r.byID[defaultID]
	if !ok {
		return nil, fmt.Errorf("registry: default model %q not registered", defaultID)
	}
	if def.Kind != model.KindRuleBased {
		return nil, fmt.Errorf("registry: default model %q must be rule-based, got %s", defaultID, def.Kind)
	}
	return r, nil
}

// Lookup resolves id to its descriptor, falling back to the default
// descriptor for unknown ids. The second return reports whether the id was
// registered, so callers can surface the substitution.
func (r *Registry) Lookup(id string) (model.Descriptor, bool) {
	if d, ok := r.byID[id]; ok {
		return d, true
	}
	return r.byID[r.defaultID], false
}

// Default returns the terminal fallback descriptor.
func (r *Registry) Default() model.Descriptor {
	return r.byID[r.defaultID]
}

// List returns all descriptors in registration order, each annotated with
// its credential-derived availability flag.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		d := r.byID[id]
		out = append(out, Entry{Descriptor: d, Available: d.Available()})
	}
	return out
}
