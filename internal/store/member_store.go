// Package store keeps the in-memory member set of one family as seen by one
// viewer, reconciled from local writes and realtime change notifications.
package store

import (
	"sync"

	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
)

// MemberStore holds members in insertion order. Deleted ids are tombstoned so
// a late insert or update for them is ignored.
type MemberStore struct {
	mu         sync.RWMutex
	familyID   string
	members    []models.Member
	pos        map[string]int
	tombstones map[string]struct{}
	selectedID *string
	selfLinkID *string
	version    uint64
}

func NewMemberStore(familyID string) *MemberStore {
	return &MemberStore{
		familyID:   familyID,
		pos:        make(map[string]int),
		tombstones: make(map[string]struct{}),
	}
}

func (s *MemberStore) FamilyID() string {
	return s.familyID
}

// Load replaces the member set. Tombstones survive a reload so a stale list
// cannot bring back a deleted member.
func (s *MemberStore) Load(members []models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members = s.members[:0]
	s.pos = make(map[string]int, len(members))
	for _, m := range members {
		if _, dead := s.tombstones[m.ID]; dead {
			continue
		}
		if _, ok := s.pos[m.ID]; ok {
			continue
		}
		s.pos[m.ID] = len(s.members)
		s.members = append(s.members, m.Clone())
	}
	if s.selectedID != nil {
		if _, ok := s.pos[*s.selectedID]; !ok {
			s.selectedID = nil
		}
	}
	s.version++
}

// Members returns a copy of the current members in order.
func (s *MemberStore) Members() []models.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Member, len(s.members))
	for i, m := range s.members {
		out[i] = m.Clone()
	}
	return out
}

func (s *MemberStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Get returns a copy of the member with id.
func (s *MemberStore) Get(id string) (models.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.pos[id]
	if !ok {
		return models.Member{}, false
	}
	return s.members[i].Clone(), true
}

// ApplyInsert appends m unless its id is already present or was deleted.
func (s *MemberStore) ApplyInsert(m models.Member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pos[m.ID]; ok {
		return false
	}
	if _, dead := s.tombstones[m.ID]; dead {
		return false
	}
	s.pos[m.ID] = len(s.members)
	s.members = append(s.members, m.Clone())
	s.version++
	return true
}

// ApplyUpdate replaces the member with the same id. Unknown or deleted ids
// are ignored.
func (s *MemberStore) ApplyUpdate(m models.Member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dead := s.tombstones[m.ID]; dead {
		return false
	}
	i, ok := s.pos[m.ID]
	if !ok {
		return false
	}
	s.members[i] = m.Clone()
	s.version++
	return true
}

// ApplyDelete removes ids, tombstones them and clears the selection and the
// self-link when they point into the batch. It returns the number removed.
func (s *MemberStore) ApplyDelete(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		batch[id] = struct{}{}
		s.tombstones[id] = struct{}{}
	}

	kept := s.members[:0]
	removed := 0
	for _, m := range s.members {
		if _, gone := batch[m.ID]; gone {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.members = kept
	s.pos = make(map[string]int, len(kept))
	for i, m := range kept {
		s.pos[m.ID] = i
	}

	if s.selectedID != nil {
		if _, gone := batch[*s.selectedID]; gone {
			s.selectedID = nil
		}
	}
	if s.selfLinkID != nil {
		if _, gone := batch[*s.selfLinkID]; gone {
			s.selfLinkID = nil
		}
	}
	s.version++
	return removed
}

// Deleted reports whether id was removed by a delete.
func (s *MemberStore) Deleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, dead := s.tombstones[id]
	return dead
}

// Select marks id as the selected member. Selecting an unknown id clears the
// selection.
func (s *MemberStore) Select(id *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == nil {
		s.selectedID = nil
		return
	}
	if _, ok := s.pos[*id]; !ok {
		s.selectedID = nil
		return
	}
	v := *id
	s.selectedID = &v
}

func (s *MemberStore) Selected() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyID(s.selectedID)
}

// SetSelfLink records which member the viewing user identified as.
func (s *MemberStore) SetSelfLink(id *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfLinkID = copyID(id)
}

func (s *MemberStore) SelfLink() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyID(s.selfLinkID)
}

// IsLinked reports whether the self-link points at a member of this store.
func (s *MemberStore) IsLinked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selfLinkID == nil {
		return false
	}
	_, ok := s.pos[*s.selfLinkID]
	return ok
}

// Version increases on every applied change.
func (s *MemberStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Index builds a genealogy index over a snapshot of the members.
func (s *MemberStore) Index() *genealogy.Index {
	return genealogy.NewIndex(s.Members())
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
