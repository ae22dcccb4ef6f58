package genealogy

import (
	"fmt"

	"github.com/rebolloluis/family-tree/internal/models"
)

const testFamily = "fam-1"

func ptr[T any](v T) *T { return &v }

func person(id string) models.Member {
	return models.Member{ID: id, FamilyID: testFamily, Name: id}
}

func childOf(id string, parents ...string) models.Member {
	m := person(id)
	if len(parents) > 0 {
		m.ParentID = ptr(parents[0])
	}
	if len(parents) > 1 {
		m.Parent2ID = ptr(parents[1])
	}
	return m
}

func spouseOf(id, partner string) models.Member {
	m := person(id)
	m.SpouseOf = ptr(partner)
	return m
}

// tree applies plans the way the tree controller does: insert the member,
// then write each follow-up slot.
type tree struct {
	members []models.Member
	seq     int
}

func (t *tree) index() *Index { return NewIndex(t.members) }

func (t *tree) get(id string) *models.Member {
	for i := range t.members {
		if t.members[i].ID == id {
			return &t.members[i]
		}
	}
	return nil
}

func (t *tree) add(intent AddIntent) (string, *Plan, error) {
	plan, err := PlanAdd(t.index(), intent)
	if err != nil {
		return "", nil, err
	}
	t.seq++
	m := plan.Member.Clone()
	m.ID = m.Name
	if t.get(m.ID) != nil {
		m.ID = fmt.Sprintf("%s-%d", m.Name, t.seq)
	}
	t.members = append(t.members, m)
	for _, f := range plan.FollowUps {
		if err := ApplyFollowUp(t.get(f.MemberID), f, m.ID); err != nil {
			return "", nil, err
		}
	}
	return m.ID, plan, nil
}

func (t *tree) mustAdd(kind Kind, anchor, name string) string {
	intent := AddIntent{Kind: kind, Fields: models.Member{FamilyID: testFamily, Name: name}}
	if anchor != "" {
		intent.Anchor = t.get(anchor)
	}
	id, _, err := t.add(intent)
	if err != nil {
		panic(err)
	}
	return id
}
