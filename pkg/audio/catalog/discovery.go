package catalog

import "sync"

// Discovery tracks descriptors that become available after start-up (for
// example a content pack mounted at runtime). Every registration change bumps
// a revision counter, so callers can capture a marker and later ask for what
// appeared since.
//
// All methods are safe for concurrent use.
type Discovery struct {
	mu       sync.Mutex
	revision int
	byEvent  map[*Descriptor]int
	order    []*Descriptor
}

// NewDiscovery returns an empty registry.
func NewDiscovery() *Discovery {
	return &Discovery{byEvent: make(map[*Descriptor]int)}
}

// Register adds d. Registering a descriptor twice is a no-op.
func (r *Discovery) Register(d *Descriptor) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEvent[d]; ok {
		return
	}
	r.revision++
	r.byEvent[d] = r.revision
	r.order = append(r.order, d)
}

// Unregister removes d and bumps the revision.
func (r *Discovery) Unregister(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEvent[d]; !ok {
		return
	}
	delete(r.byEvent, d)
	for i, e := range r.order {
		if e == d {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.revision++
}

// Marker returns the current revision.
func (r *Discovery) Marker() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// Count returns the number of registered descriptors.
func (r *Discovery) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// All returns every registered descriptor in registration order.
func (r *Discovery) All() []*Descriptor {
	return r.Since(-1)
}

// Since returns descriptors registered after marker. A negative marker
// returns everything.
func (r *Discovery) Since(marker int) []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Descriptor, 0, len(r.order))
	for _, d := range r.order {
		if marker >= 0 && r.byEvent[d] <= marker {
			continue
		}
		out = append(out, d)
	}
	return out
}
