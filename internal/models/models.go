package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Family is one family tree. Only the owner may edit it or its members.
type Family struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description *string   `gorm:"size:500" json:"description"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Owner       *User     `gorm:"foreignKey:OwnerID" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is one person in a family tree.
//
// ParentID and Parent2ID are the two ordered parent slots. SpouseOf is stored
// only on the member that was added as the spouse.
type Member struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FamilyID  string    `gorm:"type:varchar(36);index;not null" json:"family_id"`
	ParentID  *string   `gorm:"column:parent_id;type:varchar(36);index" json:"parent_id"`
	Parent2ID *string   `gorm:"column:parent2_id;type:varchar(36);index" json:"parent2_id"`
	SpouseOf  *string   `gorm:"column:spouse_of;type:varchar(36);index" json:"spouse_of"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Born      *int      `json:"born"`
	Died      *int      `json:"died"`
	Relation  *string   `gorm:"size:50" json:"relation"`
	Note      *string   `gorm:"size:500" json:"note"`
	PhotoURL  *string   `gorm:"column:photo_url;size:500" json:"photo_url"`
	CreatedBy *uint     `json:"created_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile holds per-user display data and the optional self-link to a member.
type Profile struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	FullName  *string   `gorm:"size:200" json:"full_name"`
	AvatarURL *string   `gorm:"size:500" json:"avatar_url"`
	MemberID  *string   `gorm:"type:varchar(36);index" json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Family) TableName() string  { return "families" }
func (Member) TableName() string  { return "members" }
func (Profile) TableName() string { return "profiles" }

func (f *Family) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Clone returns a copy of m that shares no pointers with it.
func (m Member) Clone() Member {
	c := m
	c.ParentID = cloneString(m.ParentID)
	c.Parent2ID = cloneString(m.Parent2ID)
	c.SpouseOf = cloneString(m.SpouseOf)
	c.Relation = cloneString(m.Relation)
	c.Note = cloneString(m.Note)
	c.PhotoURL = cloneString(m.PhotoURL)
	c.Born = cloneInt(m.Born)
	c.Died = cloneInt(m.Died)
	if m.CreatedBy != nil {
		v := *m.CreatedBy
		c.CreatedBy = &v
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
