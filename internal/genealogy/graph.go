// Package genealogy holds the family graph model: parent slots, the spouse
// predicate, descendant and ancestor queries, the add rules and the
// generation layout. Everything here is pure and works on a member slice.
package genealogy

import "github.com/rebolloluis/family-tree/internal/models"

// Index is a read-only view over the members of one family.
// It keeps pointers into the slice it was built from; callers must not mutate
// that slice while the index is in use.
type Index struct {
	members  []*models.Member
	byID     map[string]*models.Member
	children map[string][]string
	spouses  map[string][]*models.Member
}

// NewIndex indexes members, preserving their order.
func NewIndex(members []models.Member) *Index {
	idx := &Index{
		members:  make([]*models.Member, 0, len(members)),
		byID:     make(map[string]*models.Member, len(members)),
		children: make(map[string][]string),
		spouses:  make(map[string][]*models.Member),
	}
	for i := range members {
		m := &members[i]
		if _, dup := idx.byID[m.ID]; dup {
			continue
		}
		idx.members = append(idx.members, m)
		idx.byID[m.ID] = m
	}
	for _, m := range idx.members {
		for _, pid := range SlotsOf(m).IDs() {
			idx.children[pid] = append(idx.children[pid], m.ID)
		}
		if m.SpouseOf != nil {
			idx.spouses[*m.SpouseOf] = append(idx.spouses[*m.SpouseOf], m)
		}
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.members)
}

// Get returns the member with id, or nil.
func (idx *Index) Get(id string) *models.Member {
	return idx.byID[id]
}

// Members returns the indexed members in their original order.
func (idx *Index) Members() []*models.Member {
	return idx.members
}

// Children returns the ids of members holding id in either parent slot.
func (idx *Index) Children(id string) []string {
	return idx.children[id]
}

// SpousesOf returns the members added as spouse of partnerID, in member order.
func (idx *Index) SpousesOf(partnerID string) []*models.Member {
	return idx.spouses[partnerID]
}

// Descendants returns every member reachable from id through either parent
// slot, in breadth-first order. id itself is never included.
func (idx *Index) Descendants(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range idx.children[cur] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Ancestors returns the set of members reachable from id by walking up both
// parent slots. Ids that are not in the index are skipped.
func (idx *Index) Ancestors(id string) map[string]bool {
	out := make(map[string]bool)
	start := idx.byID[id]
	if start == nil {
		return out
	}
	queue := SlotsOf(start).IDs()
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if out[cur] || cur == id {
			continue
		}
		m := idx.byID[cur]
		if m == nil {
			continue
		}
		out[cur] = true
		queue = append(queue, SlotsOf(m).IDs()...)
	}
	return out
}

// IsDescendant reports whether candidate is below ancestor.
func (idx *Index) IsDescendant(ancestor, candidate string) bool {
	if ancestor == candidate {
		return false
	}
	return idx.Ancestors(candidate)[ancestor]
}

const (
	unvisited uint8 = iota
	visiting
	visited
)

// CheckAcyclic walks the parent graph over both slots and returns a
// *CycleError naming a member on the first cycle found.
func (idx *Index) CheckAcyclic() error {
	state := make(map[string]uint8, len(idx.members))
	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case visited:
			return ""
		}
		state[id] = visiting
		for _, pid := range SlotsOf(idx.byID[id]).IDs() {
			if idx.byID[pid] == nil {
				continue
			}
			if c := visit(pid); c != "" {
				return c
			}
		}
		state[id] = visited
		return ""
	}
	for _, m := range idx.members {
		if c := visit(m.ID); c != "" {
			return &CycleError{MemberID: c}
		}
	}
	return nil
}

// Descendants resolves the descendants of id in members.
func Descendants(members []models.Member, id string) []string {
	return NewIndex(members).Descendants(id)
}

// CheckAcyclic reports whether members form an acyclic parent graph.
func CheckAcyclic(members []models.Member) error {
	return NewIndex(members).CheckAcyclic()
}
