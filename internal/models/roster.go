package models

import (
	"math"
	"sort"
	"strings"
)

// Roster is an immutable, newest-first list of registrants. A Roster value
// never changes after construction; refreshes produce a new one.
type Roster struct {
	items   []Registrant
	version uint64
}

// NewRoster copies items and orders them newest first.
func NewRoster(items []Registrant, version uint64) Roster {
	cp := make([]Registrant, len(items))
	copy(cp, items)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].RegisteredAt.After(cp[j].RegisteredAt)
	})
	return Roster{items: cp, version: version}
}

func (r Roster) Len() int { return len(r.items) }

// Version increases with every replacement of the synchronizer's snapshot.
func (r Roster) Version() uint64 { return r.version }

func (r Roster) At(i int) Registrant { return r.items[i] }

// Registrants returns a copy of the list.
func (r Roster) Registrants() []Registrant {
	out := make([]Registrant, len(r.items))
	copy(out, r.items)
	return out
}

func (r Roster) Find(id string) (Registrant, bool) {
	for _, it := range r.items {
		if it.ID == id {
			return it, true
		}
	}
	return Registrant{}, false
}

// Search matches term case-insensitively against name and category.
// An empty term matches everyone.
func (r Roster) Search(term string) []Registrant {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.Registrants()
	}
	out := []Registrant{}
	for _, it := range r.items {
		if strings.Contains(strings.ToLower(it.Name), term) ||
			strings.Contains(strings.ToLower(string(it.Category)), term) {
			out = append(out, it)
		}
	}
	return out
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Stats struct {
	Total      int             `json:"total"`
	Confirmed  int             `json:"confirmed"`
	Capacity   int             `json:"capacity"`
	Occupancy  int             `json:"occupancy_percent"`
	Categories []CategoryCount `json:"categories"`
}

// Stats summarizes the roster against the event capacity. Known categories
// come first in display order, unknown labels after them alphabetically.
func (r Roster) Stats(capacity int) Stats {
	counts := map[string]int{}
	st := Stats{Total: len(r.items), Capacity: capacity}
	for _, it := range r.items {
		label := it.Category.Short()
		if label == "" {
			label = "Unknown"
		}
		counts[label]++
		if it.Status == StatusConfirmed {
			st.Confirmed++
		}
	}
	if capacity > 0 {
		st.Occupancy = int(math.Round(float64(st.Total) / float64(capacity) * 100))
	}
	for _, c := range Categories {
		if n, ok := counts[c.Short()]; ok {
			st.Categories = append(st.Categories, CategoryCount{Category: c.Short(), Count: n})
			delete(counts, c.Short())
		}
	}
	rest := make([]string, 0, len(counts))
	for label := range counts {
		rest = append(rest, label)
	}
	sort.Strings(rest)
	for _, label := range rest {
		st.Categories = append(st.Categories, CategoryCount{Category: label, Count: counts[label]})
	}
	return st
}
