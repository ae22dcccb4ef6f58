// Package seed builds demo families through the same rules engine and
// persistence path the HTTP API uses.
package seed

import (
	"context"
	"fmt"

	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
)

type entry struct {
	key         string
	kind        string
	anchor      string
	alsoChildOf string
	name        string
	born        int
	died        int
	relation    string
}

// stark is listed in insertion order; anchors refer to earlier keys.
var stark = []entry{
	{key: "rickard", kind: "root", name: "Rickard Stark", born: 1230, died: 1282, relation: "Grandfather"},
	{key: "lyarra", kind: "spouse", anchor: "rickard", name: "Lyarra Stark", born: 1232, died: 1266, relation: "Grandmother"},
	{key: "eddard", kind: "child", anchor: "rickard", alsoChildOf: "lyarra", name: "Eddard Stark", born: 1263, died: 1298, relation: "Father"},
	{key: "brandon", kind: "sibling", anchor: "eddard", name: "Brandon Stark", born: 1262, died: 1282, relation: "Uncle"},
	{key: "lyanna", kind: "sibling", anchor: "eddard", name: "Lyanna Stark", born: 1266, died: 1283, relation: "Aunt"},
	{key: "benjen", kind: "sibling", anchor: "eddard", name: "Benjen Stark", born: 1267, relation: "Uncle"},
	{key: "catelyn", kind: "spouse", anchor: "eddard", name: "Catelyn Stark", born: 1264, died: 1299, relation: "Mother"},
	{key: "robb", kind: "child", anchor: "eddard", alsoChildOf: "catelyn", name: "Robb Stark", born: 1283, died: 1299, relation: "Son"},
	{key: "sansa", kind: "sibling", anchor: "robb", name: "Sansa Stark", born: 1286, relation: "Daughter"},
	{key: "arya", kind: "sibling", anchor: "robb", name: "Arya Stark", born: 1289, relation: "Daughter"},
	{key: "bran", kind: "sibling", anchor: "robb", name: "Bran Stark", born: 1290, relation: "Son"},
	{key: "rickon", kind: "sibling", anchor: "robb", name: "Rickon Stark", born: 1295, relation: "Son"},
	{key: "jon", kind: "child", anchor: "eddard", name: "Jon Snow", born: 1283, relation: "Other"},
}

// Stark creates the Stark family for ownerID and returns it with the ids of
// the inserted members keyed by first name.
func Stark(ctx context.Context, families *services.FamilyService, persist services.Persistence, ownerID uint) (*models.Family, map[string]string, error) {
	desc := "Demo tree of House Stark"
	family, err := families.Create(ctx, ownerID, &services.FamilyRequest{Name: "Stark", Description: &desc})
	if err != nil {
		return nil, nil, fmt.Errorf("create family: %w", err)
	}

	ctrl := services.NewTreeController(persist, services.TreeOptions{
		FamilyID: family.ID,
		UserID:   ownerID,
		CanEdit:  true,
	})
	if err := ctrl.Load(ctx); err != nil {
		return nil, nil, err
	}

	ids := make(map[string]string, len(stark))
	for _, e := range stark {
		req := services.AddMemberRequest{Kind: e.kind, Name: e.name}
		if e.anchor != "" {
			req.AnchorID = ref(ids[e.anchor])
		}
		if e.alsoChildOf != "" {
			req.AlsoChildOf = ref(ids[e.alsoChildOf])
		}
		if e.born != 0 {
			req.Born = &e.born
		}
		if e.died != 0 {
			req.Died = &e.died
		}
		if e.relation != "" {
			req.Relation = ref(e.relation)
		}

		intent, err := ctrl.Intent(req)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", e.key, err)
		}
		res, err := ctrl.Add(ctx, intent, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", e.key, err)
		}
		ids[e.key] = res.Member.ID
	}
	return family, ids, nil
}

func ref(s string) *string { return &s }
