package genealogy

import (
	"fmt"
	"strings"

	"github.com/rebolloluis/family-tree/internal/models"
)

// Kind is how a new member relates to the anchor member.
type Kind string

const (
	KindRoot    Kind = "root"
	KindChild   Kind = "child"
	KindSibling Kind = "sibling"
	KindParent  Kind = "parent"
	KindSpouse  Kind = "spouse"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRoot, KindChild, KindSibling, KindParent, KindSpouse:
		return k, nil
	case "":
		return KindRoot, nil
	default:
		return "", invalid("kind", "unknown relationship kind %q", s)
	}
}

// Year bounds accepted for born and died.
const (
	MinYear = 1000
	MaxYear = 2100
)

// Relations are the relation labels offered to clients. Stored labels are free text.
var Relations = []string{
	"Grandfather", "Grandmother", "Father", "Mother", "Son", "Daughter",
	"Brother", "Sister", "Aunt", "Uncle", "Cousin", "Spouse", "Other",
}

// AddIntent describes a member the user wants to add relative to Anchor.
type AddIntent struct {
	Kind   Kind
	Anchor *models.Member
	// Fields carries the new member's data. Link fields are only read for
	// KindRoot; every other kind derives them from the anchor.
	Fields                models.Member
	AlsoChildOfTargetID   *string
	AlsoParentOfTargetIDs []string
	SelfAdd               bool
}

// FollowUp is a parent slot on an existing member that receives the new member.
type FollowUp struct {
	MemberID string `json:"member_id"`
	Slot     Slot   `json:"slot"`
}

type SkipReason string

const (
	SkipSlotsFull  SkipReason = "slots_full"
	SkipWouldCycle SkipReason = "would_cycle"
	SkipNotFound   SkipReason = "not_found"
	SkipDuplicate  SkipReason = "duplicate"
)

// Link names which requested relationship a skipped entry came from.
type Link string

const (
	LinkAlsoChildOf    Link = "also_child_of"
	LinkAlsoParentOf   Link = "also_parent_of"
	LinkParentOfAnchor Link = "parent_of_anchor"
)

type SkippedLink struct {
	Link     Link       `json:"link"`
	TargetID string     `json:"target_id"`
	Reason   SkipReason `json:"reason"`
}

// Plan is the outcome of PlanAdd: the member to insert, the parent slots to
// fill on existing members once the insert has an id, and what was skipped.
type Plan struct {
	Member    models.Member `json:"member"`
	FollowUps []FollowUp    `json:"follow_ups"`
	LinkSelf  bool          `json:"link_self"`
	Skipped   []SkippedLink `json:"skipped"`
}

func (p *Plan) skip(link Link, target string, reason SkipReason) {
	p.Skipped = append(p.Skipped, SkippedLink{Link: link, TargetID: target, Reason: reason})
}

// PlanAdd decides the link fields of a new member and the follow-up updates on
// existing members. It only returns an error for invalid input; link
// requests that would overfill a slot or close a cycle are skipped and
// reported on the plan.
func PlanAdd(idx *Index, intent AddIntent) (*Plan, error) {
	kind := intent.Kind
	if kind == "" {
		kind = KindRoot
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := ValidateFields(&intent.Fields); err != nil {
		return nil, err
	}

	var anchor *models.Member
	if kind != KindRoot {
		if intent.Anchor == nil {
			return nil, invalid("anchor", "%s requires an anchor member", kind)
		}
		anchor = idx.Get(intent.Anchor.ID)
		if anchor == nil {
			return nil, invalid("anchor", "member %s not found", intent.Anchor.ID)
		}
	}

	member := intent.Fields.Clone()
	member.ID = ""
	member.Name = strings.TrimSpace(member.Name)
	if anchor != nil && member.FamilyID == "" {
		member.FamilyID = anchor.FamilyID
	}

	var slots ParentSlots
	switch kind {
	case KindRoot:
		var err error
		if slots, err = rootLinks(idx, &member); err != nil {
			return nil, err
		}
	case KindChild:
		slots.Primary = copyID(&anchor.ID)
		member.SpouseOf = nil
	case KindSibling:
		slots = ParentSlots{Primary: copyID(anchor.ParentID), Secondary: copyID(anchor.Parent2ID)}
		member.SpouseOf = nil
	case KindParent:
		slots.Primary = copyID(anchor.ParentID)
		member.SpouseOf = nil
	case KindSpouse:
		member.SpouseOf = copyID(&anchor.ID)
	}

	plan := &Plan{LinkSelf: intent.SelfAdd}

	if target := intent.AlsoChildOfTargetID; target != nil && *target != "" {
		switch kind {
		case KindChild, KindSpouse:
			planAlsoChildOf(idx, plan, anchor, &slots, *target)
		}
	}
	slots.ApplyTo(&member)

	// Ancestors of the new member are fixed by its own slots: follow-ups only
	// hang the new member above existing members, never below.
	above := make(map[string]bool)
	for _, pid := range slots.IDs() {
		above[pid] = true
		for id := range idx.Ancestors(pid) {
			above[id] = true
		}
	}

	claimed := make(map[string]bool)
	if kind == KindParent {
		claimed[anchor.ID] = true
		planFollowUp(idx, plan, LinkParentOfAnchor, anchor.ID, above)
	}

	var anchorAbove map[string]bool
	if anchor != nil {
		anchorAbove = idx.Ancestors(anchor.ID)
	}
	for _, target := range intent.AlsoParentOfTargetIDs {
		if target == "" {
			continue
		}
		if claimed[target] {
			plan.skip(LinkAlsoParentOf, target, SkipDuplicate)
			continue
		}
		claimed[target] = true
		if anchor != nil && target == anchor.ID {
			plan.skip(LinkAlsoParentOf, target, SkipDuplicate)
			continue
		}
		if anchorAbove[target] {
			plan.skip(LinkAlsoParentOf, target, SkipWouldCycle)
			continue
		}
		planFollowUp(idx, plan, LinkAlsoParentOf, target, above)
	}

	plan.Member = member
	return plan, nil
}

func planAlsoChildOf(idx *Index, plan *Plan, anchor *models.Member, slots *ParentSlots, target string) {
	if idx.Get(target) == nil {
		plan.skip(LinkAlsoChildOf, target, SkipNotFound)
		return
	}
	if anchor != nil && target == anchor.ID {
		plan.skip(LinkAlsoChildOf, target, SkipDuplicate)
		return
	}
	if anchor != nil && idx.IsDescendant(anchor.ID, target) {
		plan.skip(LinkAlsoChildOf, target, SkipWouldCycle)
		return
	}
	if _, err := slots.AssignFirstFreeSlot(target); err != nil {
		plan.skip(LinkAlsoChildOf, target, skipReason(err))
	}
}

func planFollowUp(idx *Index, plan *Plan, link Link, target string, above map[string]bool) {
	m := idx.Get(target)
	if m == nil {
		plan.skip(link, target, SkipNotFound)
		return
	}
	if above[target] {
		plan.skip(link, target, SkipWouldCycle)
		return
	}
	slots := SlotsOf(m)
	slot := slots.FirstFree()
	if slot == SlotNone {
		plan.skip(link, target, SkipSlotsFull)
		return
	}
	plan.FollowUps = append(plan.FollowUps, FollowUp{MemberID: target, Slot: slot})
}

func skipReason(err error) SkipReason {
	if err == ErrDuplicateParent {
		return SkipDuplicate
	}
	return SkipSlotsFull
}

// rootLinks validates links supplied explicitly on a root add. Slots are
// compacted so a lone parent always sits in the primary slot.
func rootLinks(idx *Index, m *models.Member) (ParentSlots, error) {
	var slots ParentSlots
	for _, ref := range []struct {
		field string
		id    *string
	}{{"parent_id", m.ParentID}, {"parent2_id", m.Parent2ID}} {
		if ref.id == nil || *ref.id == "" {
			continue
		}
		if err := checkRef(idx, m, ref.field, *ref.id); err != nil {
			return slots, err
		}
		if _, err := slots.AssignFirstFreeSlot(*ref.id); err != nil {
			return slots, invalid(ref.field, "%v", err)
		}
	}
	if m.SpouseOf != nil {
		if *m.SpouseOf == "" {
			m.SpouseOf = nil
		} else if err := checkRef(idx, m, "spouse_of", *m.SpouseOf); err != nil {
			return slots, err
		}
	}
	return slots, nil
}

func checkRef(idx *Index, m *models.Member, field, id string) error {
	if m.ID != "" && id == m.ID {
		return invalid(field, "a member cannot reference itself")
	}
	ref := idx.Get(id)
	if ref == nil {
		return invalid(field, "member %s not found", id)
	}
	if m.FamilyID != "" && ref.FamilyID != m.FamilyID {
		return invalid(field, "member %s belongs to another family", id)
	}
	return nil
}

// ValidateFields checks the user-editable member fields.
func ValidateFields(m *models.Member) error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid("name", "name is required")
	}
	if err := checkYear("born", m.Born); err != nil {
		return err
	}
	return checkYear("died", m.Died)
}

func checkYear(field string, year *int) error {
	if year == nil {
		return nil
	}
	if *year < MinYear || *year > MaxYear {
		return invalid(field, "year must be between %d and %d", MinYear, MaxYear)
	}
	return nil
}

// AlsoParentCandidates lists members that could take a new member of kind,
// added relative to anchor, as an extra parent: not the anchor, not above the
// anchor, not above the new member and not already full.
func AlsoParentCandidates(idx *Index, kind Kind, anchor *models.Member) []*models.Member {
	excluded := make(map[string]bool)
	var slots ParentSlots
	if anchor != nil {
		excluded[anchor.ID] = true
		for id := range idx.Ancestors(anchor.ID) {
			excluded[id] = true
		}
		switch kind {
		case KindChild:
			slots.Primary = &anchor.ID
		case KindSibling:
			slots = SlotsOf(anchor)
		case KindParent:
			slots.Primary = anchor.ParentID
		}
	}
	for _, pid := range slots.IDs() {
		excluded[pid] = true
		for id := range idx.Ancestors(pid) {
			excluded[id] = true
		}
	}

	var out []*models.Member
	for _, m := range idx.members {
		if excluded[m.ID] || SlotsOf(m).Full() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// AlsoChildCandidates lists members that could become the second parent of a
// new child or spouse of anchor. Other kinds have no candidates.
func AlsoChildCandidates(idx *Index, kind Kind, anchor *models.Member) []*models.Member {
	if anchor == nil || (kind != KindChild && kind != KindSpouse) {
		return nil
	}
	excluded := map[string]bool{anchor.ID: true}
	for _, id := range idx.Descendants(anchor.ID) {
		excluded[id] = true
	}
	var out []*models.Member
	for _, m := range idx.members {
		if !excluded[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// ApplyFollowUp writes newID into the follow-up slot of m. It re-checks the
// slot so a concurrent change that already filled it is reported.
func ApplyFollowUp(m *models.Member, f FollowUp, newID string) error {
	slots := SlotsOf(m)
	if slots.Has(newID) {
		return ErrDuplicateParent
	}
	if slots.Get(f.Slot) != nil {
		return fmt.Errorf("%s of %s: %w", f.Slot, m.ID, ErrSlotsFull)
	}
	slot, err := slots.AssignFirstFreeSlot(newID)
	if err != nil {
		return err
	}
	if slot != f.Slot {
		return fmt.Errorf("%s of %s: %w", f.Slot, m.ID, ErrSlotsFull)
	}
	slots.ApplyTo(m)
	return nil
}
