package migration

import "fmt"

// Chain is the ordered list of migrations from first to last
type Chain []*Migration

// BuildChain orders the migrations of a set by their PrevID links. It
// rejects duplicate ids, forked and cyclic chains, and references to unknown
// migrations.
func BuildChain(s *Set) (Chain, error) {
	ms := s.Migrations()
	if len(ms) == 0 {
		return nil, nil
	}
	byID := make(map[string]*Migration, len(ms))
	for _, m := range ms {
		if m.ID == "" {
			return nil, fmt.Errorf("migration %q has no id", m.Description)
		}
		if _, dup := byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate migration id %s", m.ID)
		}
		byID[m.ID] = m
	}

	byPrev := make(map[string]*Migration, len(ms))
	var first *Migration
	for _, m := range ms {
		if m.PrevID == "" {
			if first != nil {
				return nil, fmt.Errorf("migrations %s and %s both start the chain", first.ID, m.ID)
			}
			first = m
			continue
		}
		if _, ok := byID[m.PrevID]; !ok {
			return nil, fmt.Errorf("migration %s follows unknown migration %s", m.ID, m.PrevID)
		}
		if other, dup := byPrev[m.PrevID]; dup {
			return nil, fmt.Errorf("migrations %s and %s both follow %s", other.ID, m.ID, m.PrevID)
		}
		byPrev[m.PrevID] = m
	}
	if first == nil {
		return nil, fmt.Errorf("no migration starts the chain")
	}

	chain := make(Chain, 0, len(ms))
	for m := first; m != nil; m = byPrev[m.ID] {
		chain = append(chain, m)
	}
	if len(chain) != len(ms) {
		return nil, fmt.Errorf("%d migrations are not reachable from %s", len(ms)-len(chain), first.ID)
	}
	return chain, nil
}

// Last returns the id of the newest migration, empty for an empty chain
func (c Chain) Last() string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1].ID
}

// Find returns the position of id in the chain, -1 when absent
func (c Chain) Find(id string) int {
	for i, m := range c {
		if m.ID == id {
			return i
		}
	}
	return -1
}
