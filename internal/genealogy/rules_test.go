package genealogy

import (
	"testing"

	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRickardLadyEddard(t *testing.T) {
	tr := &tree{}
	rickard := tr.mustAdd(KindRoot, "", "rickard")
	lady := tr.mustAdd(KindSpouse, rickard, "lady")

	eddard, plan, err := tr.add(AddIntent{
		Kind:                KindChild,
		Anchor:              tr.get(rickard),
		Fields:              models.Member{FamilyID: testFamily, Name: "eddard"},
		AlsoChildOfTargetID: ptr(lady),
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Skipped)

	e := tr.get(eddard)
	assert.Equal(t, rickard, *e.ParentID)
	assert.Equal(t, lady, *e.Parent2ID)
	assert.Nil(t, e.SpouseOf)
	assert.Equal(t, rickard, *tr.get(lady).SpouseOf)

	l := tr.index().BuildLayout(DefaultGeometry())
	require.Len(t, l.Generations, 2)
	require.Len(t, l.Generations[0], 1)
	assert.Equal(t, rickard, l.Generations[0][0].Member.ID)
	require.Len(t, l.Generations[0][0].Spouses, 1)
	assert.Equal(t, lady, l.Generations[0][0].Spouses[0].ID)
	require.Len(t, l.Generations[1], 1)
	assert.Equal(t, eddard, l.Generations[1][0].Member.ID)

	require.Len(t, l.Edges, 2)
	assert.Equal(t, rickard, l.Edges[0].ParentID)
	assert.Equal(t, SlotPrimary, l.Edges[0].Slot)
	assert.Equal(t, lady, l.Edges[1].ParentID)
	assert.Equal(t, SlotSecondary, l.Edges[1].Slot)
}

func TestSiblingInheritsBothLinks(t *testing.T) {
	tr := &tree{members: starkMembers()}
	id, plan, err := tr.add(AddIntent{
		Kind:                KindSibling,
		Anchor:              tr.get("robb"),
		Fields:              models.Member{Name: "new"},
		AlsoChildOfTargetID: ptr("lyanna"),
	})
	require.NoError(t, err)
	assert.Equal(t, testFamily, plan.Member.FamilyID)

	m := tr.get(id)
	assert.Equal(t, "eddard", *m.ParentID)
	assert.Equal(t, "catelyn", *m.Parent2ID)
}

func TestSiblingOfRootHasNoParents(t *testing.T) {
	tr := &tree{members: starkMembers()}
	id, _, err := tr.add(AddIntent{Kind: KindSibling, Anchor: tr.get("rickard"), Fields: models.Member{Name: "willam"}})
	require.NoError(t, err)
	assert.Nil(t, tr.get(id).ParentID)
	assert.Nil(t, tr.get(id).Parent2ID)
}

func TestParentOfFullAnchorLeavesAnchorUnchanged(t *testing.T) {
	tr := &tree{members: starkMembers()}
	before := tr.get("robb").Clone()

	id, plan, err := tr.add(AddIntent{Kind: KindParent, Anchor: tr.get("robb"), Fields: models.Member{Name: "extra"}})
	require.NoError(t, err)

	assert.Empty(t, plan.FollowUps)
	assert.Equal(t, []SkippedLink{{Link: LinkParentOfAnchor, TargetID: "robb", Reason: SkipSlotsFull}}, plan.Skipped)
	assert.Equal(t, before, *tr.get("robb"))

	m := tr.get(id)
	assert.Equal(t, "eddard", *m.ParentID)
	assert.Nil(t, m.Parent2ID)
}

func TestParentFillsAnchorsFirstFreeSlot(t *testing.T) {
	tr := &tree{}
	kid := tr.mustAdd(KindRoot, "", "kid")

	mum, plan, err := tr.add(AddIntent{Kind: KindParent, Anchor: tr.get(kid), Fields: models.Member{Name: "mum"}})
	require.NoError(t, err)
	assert.Equal(t, []FollowUp{{MemberID: kid, Slot: SlotPrimary}}, plan.FollowUps)
	assert.Nil(t, tr.get(mum).ParentID)

	dad := tr.mustAdd(KindParent, kid, "dad")
	k := tr.get(kid)
	assert.Equal(t, mum, *k.ParentID)
	assert.Equal(t, dad, *k.Parent2ID)

	require.NoError(t, tr.index().CheckAcyclic())
}

func TestParentInheritsAnchorsPrimaryParent(t *testing.T) {
	tr := &tree{}
	grandpa := tr.mustAdd(KindRoot, "", "grandpa")
	kid := tr.mustAdd(KindChild, grandpa, "kid")

	mid, plan, err := tr.add(AddIntent{Kind: KindParent, Anchor: tr.get(kid), Fields: models.Member{Name: "mid"}})
	require.NoError(t, err)
	assert.Equal(t, []FollowUp{{MemberID: kid, Slot: SlotSecondary}}, plan.FollowUps)
	assert.Equal(t, grandpa, *tr.get(mid).ParentID)
	require.NoError(t, tr.index().CheckAcyclic())
}

func TestSpouseGetsNoParentUnlessAlsoChildOf(t *testing.T) {
	tr := &tree{members: starkMembers()}

	id := tr.mustAdd(KindSpouse, "robb", "talisa")
	m := tr.get(id)
	assert.Equal(t, "robb", *m.SpouseOf)
	assert.Nil(t, m.ParentID)

	id, plan, err := tr.add(AddIntent{
		Kind:                KindSpouse,
		Anchor:              tr.get("jon"),
		Fields:              models.Member{Name: "ygritte"},
		AlsoChildOfTargetID: ptr("benjen"),
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Skipped)
	assert.Equal(t, "benjen", *tr.get(id).ParentID)
	assert.Nil(t, tr.get(id).Parent2ID)
}

func TestAlsoChildOfSkips(t *testing.T) {
	tests := []struct {
		name   string
		anchor string
		target string
		reason SkipReason
	}{
		{"anchor itself", "eddard", "eddard", SkipDuplicate},
		{"descendant of anchor", "eddard", "robb", SkipWouldCycle},
		{"unknown member", "eddard", "nobody", SkipNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &tree{members: starkMembers()}
			id, plan, err := tr.add(AddIntent{
				Kind:                KindChild,
				Anchor:              tr.get(tt.anchor),
				Fields:              models.Member{Name: "new"},
				AlsoChildOfTargetID: ptr(tt.target),
			})
			require.NoError(t, err)
			assert.Equal(t, []SkippedLink{{Link: LinkAlsoChildOf, TargetID: tt.target, Reason: tt.reason}}, plan.Skipped)
			assert.Equal(t, tt.anchor, *tr.get(id).ParentID)
			assert.Nil(t, tr.get(id).Parent2ID)
		})
	}
}

func TestAlsoParentOf(t *testing.T) {
	tr := &tree{}
	root := tr.mustAdd(KindRoot, "", "root")
	a := tr.mustAdd(KindChild, root, "a")
	orphan := tr.mustAdd(KindRoot, "", "orphan")
	half := tr.mustAdd(KindChild, root, "half")

	id, plan, err := tr.add(AddIntent{
		Kind:                  KindChild,
		Anchor:                tr.get(a),
		Fields:                models.Member{Name: "new"},
		AlsoParentOfTargetIDs: []string{orphan, half, a, root, "ghost", orphan},
	})
	require.NoError(t, err)

	assert.Equal(t, []FollowUp{
		{MemberID: orphan, Slot: SlotPrimary},
		{MemberID: half, Slot: SlotSecondary},
	}, plan.FollowUps)
	assert.Equal(t, []SkippedLink{
		{Link: LinkAlsoParentOf, TargetID: a, Reason: SkipDuplicate},
		{Link: LinkAlsoParentOf, TargetID: root, Reason: SkipWouldCycle},
		{Link: LinkAlsoParentOf, TargetID: "ghost", Reason: SkipNotFound},
		{Link: LinkAlsoParentOf, TargetID: orphan, Reason: SkipDuplicate},
	}, plan.Skipped)

	assert.Equal(t, id, *tr.get(orphan).ParentID)
	assert.Equal(t, id, *tr.get(half).Parent2ID)
	require.NoError(t, tr.index().CheckAcyclic())
}

func TestAlsoParentOfFullTargetSkipped(t *testing.T) {
	tr := &tree{members: starkMembers()}
	_, plan, err := tr.add(AddIntent{
		Kind:                  KindRoot,
		Fields:                models.Member{Name: "maester"},
		AlsoParentOfTargetIDs: []string{"sansa"},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.FollowUps)
	assert.Equal(t, SkipSlotsFull, plan.Skipped[0].Reason)
}

func TestAlsoParentOfNewMembersAncestorsWouldCycle(t *testing.T) {
	tr := &tree{}
	top := tr.mustAdd(KindRoot, "", "top")
	other := tr.mustAdd(KindRoot, "", "other")
	mid := tr.mustAdd(KindChild, other, "mid")

	// new is child of top and also child of mid, so mid and other sit above it.
	_, plan, err := tr.add(AddIntent{
		Kind:                  KindChild,
		Anchor:                tr.get(top),
		Fields:                models.Member{Name: "new"},
		AlsoChildOfTargetID:   ptr(mid),
		AlsoParentOfTargetIDs: []string{other, mid},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.FollowUps)
	assert.Equal(t, []SkippedLink{
		{Link: LinkAlsoParentOf, TargetID: other, Reason: SkipWouldCycle},
		{Link: LinkAlsoParentOf, TargetID: mid, Reason: SkipWouldCycle},
	}, plan.Skipped)
	require.NoError(t, tr.index().CheckAcyclic())
}

func TestSelfAddSetsLinkSelf(t *testing.T) {
	plan, err := PlanAdd(NewIndex(nil), AddIntent{Kind: KindRoot, Fields: models.Member{Name: " me "}, SelfAdd: true})
	require.NoError(t, err)
	assert.True(t, plan.LinkSelf)
	assert.Equal(t, "me", plan.Member.Name)
}

func TestPlanAddValidation(t *testing.T) {
	idx := NewIndex(starkMembers())
	tests := []struct {
		name   string
		intent AddIntent
		field  string
	}{
		{"empty name", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "   "}}, "name"},
		{"born too early", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "x", Born: ptr(999)}}, "born"},
		{"died too late", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "x", Died: ptr(2101)}}, "died"},
		{"missing anchor", AddIntent{Kind: KindChild, Fields: models.Member{Name: "x"}}, "anchor"},
		{"unknown anchor", AddIntent{Kind: KindChild, Anchor: &models.Member{ID: "ghost"}, Fields: models.Member{Name: "x"}}, "anchor"},
		{"unknown kind", AddIntent{Kind: "cousin", Fields: models.Member{Name: "x"}}, "kind"},
		{"root with unknown parent", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "x", ParentID: ptr("ghost")}}, "parent_id"},
		{"root with foreign parent", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "x", FamilyID: "other", ParentID: ptr("eddard")}}, "parent_id"},
		{"root spouse of unknown", AddIntent{Kind: KindRoot, Fields: models.Member{Name: "x", SpouseOf: ptr("ghost")}}, "spouse_of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanAdd(idx, tt.intent)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRootExplicitLinksAreCompacted(t *testing.T) {
	plan, err := PlanAdd(NewIndex(starkMembers()), AddIntent{
		Kind:   KindRoot,
		Fields: models.Member{FamilyID: testFamily, Name: "x", Parent2ID: ptr("eddard")},
	})
	require.NoError(t, err)
	assert.Equal(t, "eddard", *plan.Member.ParentID)
	assert.Nil(t, plan.Member.Parent2ID)
}

func TestNonRootIgnoresSuppliedLinks(t *testing.T) {
	plan, err := PlanAdd(NewIndex(starkMembers()), AddIntent{
		Kind:   KindChild,
		Anchor: &models.Member{ID: "arya"},
		Fields: models.Member{Name: "x", ParentID: ptr("rickard"), Parent2ID: ptr("lady"), SpouseOf: ptr("jon")},
	})
	require.NoError(t, err)
	assert.Equal(t, "arya", *plan.Member.ParentID)
	assert.Nil(t, plan.Member.Parent2ID)
	assert.Nil(t, plan.Member.SpouseOf)
}

func TestAddSequenceStaysAcyclic(t *testing.T) {
	tr := &tree{}
	first := tr.mustAdd(KindRoot, "", "m0")
	ids := []string{first}
	kinds := []Kind{KindChild, KindParent, KindSibling, KindSpouse, KindChild, KindParent}

	for i := 1; i < 60; i++ {
		anchor := ids[(i*7)%len(ids)]
		intent := AddIntent{
			Kind:   kinds[i%len(kinds)],
			Anchor: tr.get(anchor),
			Fields: models.Member{FamilyID: testFamily, Name: "m" + string(rune('a'+i%26)) + string(rune('a'+i/26))},
		}
		if i%3 == 0 {
			intent.AlsoChildOfTargetID = ptr(ids[(i*5)%len(ids)])
		}
		if i%4 == 0 {
			intent.AlsoParentOfTargetIDs = []string{ids[(i*3)%len(ids)], ids[(i*11)%len(ids)]}
		}
		id, _, err := tr.add(intent)
		require.NoError(t, err)
		ids = append(ids, id)
		require.NoError(t, tr.index().CheckAcyclic(), "after adding %s", id)

		for j := range tr.members {
			s := SlotsOf(&tr.members[j])
			if s.Secondary != nil {
				assert.NotNil(t, s.Primary, "%s has a second parent without a first", tr.members[j].ID)
			}
		}
	}
}

func TestCandidates(t *testing.T) {
	idx := NewIndex(starkMembers())
	eddard := idx.Get("eddard")

	ids := func(ms []*models.Member) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	parentCands := ids(AlsoParentCandidates(idx, KindChild, eddard))
	assert.NotContains(t, parentCands, "eddard")
	assert.NotContains(t, parentCands, "rickard")
	assert.NotContains(t, parentCands, "lady")
	assert.NotContains(t, parentCands, "robb")
	assert.Contains(t, parentCands, "catelyn")
	assert.Contains(t, parentCands, "rhaegar")

	childCands := ids(AlsoChildCandidates(idx, KindChild, eddard))
	assert.NotContains(t, childCands, "eddard")
	assert.NotContains(t, childCands, "arya")
	assert.Contains(t, childCands, "catelyn")
	assert.Contains(t, childCands, "rickard")

	assert.Nil(t, AlsoChildCandidates(idx, KindSibling, eddard))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Child ")
	require.NoError(t, err)
	assert.Equal(t, KindChild, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindRoot, k)

	_, err = ParseKind("nephew")
	assert.Error(t, err)
}
