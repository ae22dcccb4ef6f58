package genealogy

import "github.com/rebolloluis/family-tree/internal/models"

// The spouse link is stored only on the member that was added as the spouse.
// Every spouse question goes through the helpers below so the one-directional
// storage is interpreted the same way everywhere.

// IsSpouse reports whether m was added as someone's spouse.
func IsSpouse(m *models.Member) bool {
	return m.SpouseOf != nil
}

// IsSpouseOf reports whether m was added as the spouse of partnerID.
func IsSpouseOf(m *models.Member, partnerID string) bool {
	return m.SpouseOf != nil && *m.SpouseOf == partnerID
}

// ArePartners reports whether a and b are displayed as partners.
func ArePartners(a, b *models.Member) bool {
	return IsSpouseOf(a, b.ID) || IsSpouseOf(b, a.ID)
}
