package catalog

import (
	"log/slog"
	"strings"
)

// Bank is a named group of events loaded and unloaded together.
type Bank struct {
	ID       string
	EventIDs []string

	// LoadWhenSoundEnabled preloads the bank at start-up and whenever sound
	// is re-enabled.
	LoadWhenSoundEnabled bool
	// LoadWhenMusicEnabled is the music equivalent.
	LoadWhenMusicEnabled bool
}

// Catalog maps event ids to descriptors. Lookups are case-insensitive. It is
// built once and read-only afterwards, so concurrent reads are safe.
type Catalog struct {
	byID   map[string]*Descriptor
	events []*Descriptor
	banks  []Bank
}

// New builds a catalog. Descriptors without an id are skipped; for duplicate
// ids the first registration wins and the duplicate is logged.
func New(events []*Descriptor, banks ...Bank) *Catalog {
	c := &Catalog{
		byID:   make(map[string]*Descriptor, len(events)),
		events: make([]*Descriptor, 0, len(events)),
		banks:  banks,
	}
	for _, d := range events {
		if d == nil || strings.TrimSpace(d.ID) == "" {
			continue
		}
		key := strings.ToLower(d.ID)
		if _, dup := c.byID[key]; dup {
			slog.Warn("catalog: duplicate event id, keeping first entry", "id", d.ID)
			continue
		}
		c.byID[key] = d
		c.events = append(c.events, d)
	}
	return c
}

// Lookup returns the descriptor registered under id.
func (c *Catalog) Lookup(id string) (*Descriptor, bool) {
	if c == nil || strings.TrimSpace(id) == "" {
		return nil, false
	}
	d, ok := c.byID[strings.ToLower(id)]
	return d, ok
}

// Events returns all descriptors in registration order.
func (c *Catalog) Events() []*Descriptor {
	if c == nil {
		return nil
	}
	return c.events
}

// Len returns the number of registered events.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.events)
}

// Banks returns the configured banks.
func (c *Catalog) Banks() []Bank {
	if c == nil {
		return nil
	}
	return c.banks
}

// Bank returns the bank with the given id, compared case-insensitively.
func (c *Catalog) Bank(id string) (Bank, bool) {
	if c == nil || strings.TrimSpace(id) == "" {
		return Bank{}, false
	}
	for _, b := range c.banks {
		if strings.EqualFold(b.ID, id) {
			return b, true
		}
	}
	return Bank{}, false
}

// Resolve maps event ids to descriptors, skipping blanks, repeats and ids not
// in the catalog.
func (c *Catalog) Resolve(ids []string) []*Descriptor {
	out := make([]*Descriptor, 0, len(ids))
	seen := make(map[*Descriptor]struct{}, len(ids))
	for _, id := range ids {
		d, ok := c.Lookup(id)
		if !ok {
			if strings.TrimSpace(id) != "" {
				slog.Warn("catalog: event id not found", "id", id)
			}
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
