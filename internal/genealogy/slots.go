package genealogy

import "github.com/rebolloluis/family-tree/internal/models"

// Slot names one of the two ordered parent positions of a member.
type Slot int

const (
	SlotNone Slot = iota
	SlotPrimary
	SlotSecondary
)

// Column returns the storage column backing the slot.
func (s Slot) Column() string {
	switch s {
	case SlotPrimary:
		return "parent_id"
	case SlotSecondary:
		return "parent2_id"
	default:
		return ""
	}
}

func (s Slot) String() string {
	if c := s.Column(); c != "" {
		return c
	}
	return "none"
}

func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParentSlots is the two-slot parent structure of a member. Slots fill left
// to right: Primary first, then Secondary.
type ParentSlots struct {
	Primary   *string
	Secondary *string
}

// SlotsOf reads the parent slots of m.
func SlotsOf(m *models.Member) ParentSlots {
	return ParentSlots{Primary: m.ParentID, Secondary: m.Parent2ID}
}

func (p ParentSlots) Empty() bool {
	return p.Primary == nil && p.Secondary == nil
}

func (p ParentSlots) Full() bool {
	return p.Primary != nil && p.Secondary != nil
}

// Has reports whether id occupies either slot.
func (p ParentSlots) Has(id string) bool {
	return (p.Primary != nil && *p.Primary == id) || (p.Secondary != nil && *p.Secondary == id)
}

// Get returns the id stored in slot s.
func (p ParentSlots) Get(s Slot) *string {
	switch s {
	case SlotPrimary:
		return p.Primary
	case SlotSecondary:
		return p.Secondary
	}
	return nil
}

// IDs returns the distinct parent ids in slot order.
func (p ParentSlots) IDs() []string {
	ids := make([]string, 0, 2)
	if p.Primary != nil {
		ids = append(ids, *p.Primary)
	}
	if p.Secondary != nil && (p.Primary == nil || *p.Secondary != *p.Primary) {
		ids = append(ids, *p.Secondary)
	}
	return ids
}

// FirstFree returns the slot the next parent would land in.
func (p ParentSlots) FirstFree() Slot {
	switch {
	case p.Primary == nil:
		return SlotPrimary
	case p.Secondary == nil:
		return SlotSecondary
	default:
		return SlotNone
	}
}

// AssignFirstFreeSlot stores id in the first empty slot and returns it.
// It is the only way parent links are added to an existing member.
func (p *ParentSlots) AssignFirstFreeSlot(id string) (Slot, error) {
	if p.Has(id) {
		return SlotNone, ErrDuplicateParent
	}
	slot := p.FirstFree()
	v := id
	switch slot {
	case SlotPrimary:
		p.Primary = &v
	case SlotSecondary:
		p.Secondary = &v
	default:
		return SlotNone, ErrSlotsFull
	}
	return slot, nil
}

// ApplyTo writes the slots back onto m.
func (p ParentSlots) ApplyTo(m *models.Member) {
	m.ParentID = copyID(p.Primary)
	m.Parent2ID = copyID(p.Secondary)
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
