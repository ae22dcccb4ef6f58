package genealogy

import (
	"testing"

	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starkMembers() []models.Member {
	return []models.Member{
		person("rickard"),
		spouseOf("lady", "rickard"),
		childOf("brandon", "rickard", "lady"),
		childOf("eddard", "rickard", "lady"),
		childOf("benjen", "rickard", "lady"),
		childOf("lyanna", "rickard", "lady"),
		spouseOf("catelyn", "eddard"),
		spouseOf("rhaegar", "lyanna"),
		childOf("robb", "eddard", "catelyn"),
		childOf("sansa", "eddard", "catelyn"),
		childOf("arya", "eddard", "catelyn"),
		childOf("bran", "eddard", "catelyn"),
		childOf("rickon", "eddard", "catelyn"),
		childOf("jon", "lyanna", "rhaegar"),
	}
}

func TestDescendantsBreadthFirst(t *testing.T) {
	got := Descendants(starkMembers(), "rickard")
	assert.Equal(t, []string{
		"brandon", "eddard", "benjen", "lyanna",
		"robb", "sansa", "arya", "bran", "rickon", "jon",
	}, got)
}

func TestDescendantsFollowsSecondSlot(t *testing.T) {
	got := Descendants(starkMembers(), "catelyn")
	assert.Equal(t, []string{"robb", "sansa", "arya", "bran", "rickon"}, got)
}

func TestDescendantsExcludesStartAndLeaves(t *testing.T) {
	assert.Empty(t, Descendants(starkMembers(), "arya"))
	assert.Empty(t, Descendants(starkMembers(), "missing"))
}

func TestDescendantsVisitsSharedChildOnce(t *testing.T) {
	members := []models.Member{
		person("a"),
		childOf("b", "a"),
		childOf("c", "a"),
		childOf("d", "b", "c"),
	}
	assert.Equal(t, []string{"b", "c", "d"}, Descendants(members, "a"))
}

func TestDescendantsTerminatesOnCycle(t *testing.T) {
	members := []models.Member{
		childOf("a", "c"),
		childOf("b", "a"),
		childOf("c", "b"),
	}
	assert.Equal(t, []string{"b", "c"}, Descendants(members, "a"))
}

func TestAncestorsWalksBothSlots(t *testing.T) {
	idx := NewIndex(starkMembers())

	got := idx.Ancestors("robb")
	assert.Equal(t, map[string]bool{"eddard": true, "catelyn": true, "rickard": true, "lady": true}, got)
	assert.Empty(t, idx.Ancestors("rickard"))

	assert.True(t, idx.IsDescendant("lady", "jon"))
	assert.True(t, idx.IsDescendant("rhaegar", "jon"))
	assert.False(t, idx.IsDescendant("jon", "lyanna"))
	assert.False(t, idx.IsDescendant("eddard", "eddard"))
}

func TestCheckAcyclic(t *testing.T) {
	require.NoError(t, CheckAcyclic(starkMembers()))

	tests := []struct {
		name    string
		members []models.Member
	}{
		{"self parent", []models.Member{childOf("a", "a")}},
		{"primary loop", []models.Member{childOf("a", "b"), childOf("b", "a")}},
		{"loop through second slot", []models.Member{
			person("root"),
			childOf("a", "root"),
			childOf("b", "a"),
			childOf("a2", "root"),
			{ID: "x", Name: "x", ParentID: ptr("root"), Parent2ID: ptr("y")},
			childOf("y", "x"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAcyclic(tt.members)
			var cycle *CycleError
			assert.ErrorAs(t, err, &cycle)
		})
	}
}

func TestIndexIgnoresDuplicateIDs(t *testing.T) {
	idx := NewIndex([]models.Member{person("a"), childOf("a", "z")})
	assert.Equal(t, 1, idx.Len())
	assert.Nil(t, idx.Get("a").ParentID)
}
