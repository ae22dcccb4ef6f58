package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangeHandlers receive committed member changes for one family.
type ChangeHandlers struct {
	OnInsert func(models.Member)
	OnUpdate func(models.Member)
	OnDelete func(ids []string)
}

// Persistence is the storage and notification contract the tree controller
// writes through. Every successful write is echoed to the family's
// subscribers, the writer included.
type Persistence interface {
	ListMembers(ctx context.Context, familyID string) ([]models.Member, error)
	InsertMember(ctx context.Context, m *models.Member) (*models.Member, error)
	UpdateMember(ctx context.Context, id string, fields map[string]interface{}) (*models.Member, error)
	DeleteMembers(ctx context.Context, familyID string, ids []string) error
	Subscribe(familyID string, handlers ChangeHandlers) (unsubscribe func())
	UploadPhoto(ctx context.Context, scope, filename string, r io.Reader) (string, error)
	SetSelfLink(ctx context.Context, userID uint, memberID *string) error
	GetSelfLink(ctx context.Context, userID uint) (*string, error)
	// ReleasablePhotos filters urls down to the family's own uploads that no
	// member or profile references any more.
	ReleasablePhotos(ctx context.Context, familyID string, urls []string) ([]string, error)
}

// GormPersistence implements Persistence on gorm with in-process fan-out.
type GormPersistence struct {
	db      *gorm.DB
	hub     *ChangeHub
	uploads *UploadService
}

func NewGormPersistence(db *gorm.DB, hub *ChangeHub, uploads *UploadService) *GormPersistence {
	return &GormPersistence{db: db, hub: hub, uploads: uploads}
}

func (p *GormPersistence) ListMembers(ctx context.Context, familyID string) ([]models.Member, error) {
	var members []models.Member
	if err := p.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (p *GormPersistence) InsertMember(ctx context.Context, m *models.Member) (*models.Member, error) {
	if m.FamilyID == "" {
		return nil, errors.New("member has no family")
	}
	if err := p.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	saved := m.Clone()
	p.hub.Publish(MemberChange{Op: ChangeInsert, FamilyID: m.FamilyID, Member: &saved})
	return m, nil
}

// UpdateMember writes fields on the member. The id and family_id columns
// cannot be changed.
func (p *GormPersistence) UpdateMember(ctx context.Context, id string, fields map[string]interface{}) (*models.Member, error) {
	for _, col := range []string{"id", "family_id", "created_at", "created_by"} {
		if _, ok := fields[col]; ok {
			return nil, fmt.Errorf("%s: %w", col, ErrNotEditable)
		}
	}

	db := p.db.WithContext(ctx)
	var m models.Member
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if len(fields) > 0 {
		if err := db.Model(&m).Updates(fields).Error; err != nil {
			return nil, err
		}
		if err := db.First(&m, "id = ?", id).Error; err != nil {
			return nil, err
		}
	}
	saved := m.Clone()
	p.hub.Publish(MemberChange{Op: ChangeUpdate, FamilyID: m.FamilyID, Member: &saved})
	return &m, nil
}

// DeleteMembers removes the batch in one transaction and clears any profile
// self-link that pointed into it.
func (p *GormPersistence) DeleteMembers(ctx context.Context, familyID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Profile{}).
			Where("member_id IN ?", ids).
			Update("member_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("family_id = ? AND id IN ?", familyID, ids).Delete(&models.Member{}).Error
	})
	if err != nil {
		return err
	}
	p.hub.Publish(MemberChange{Op: ChangeDelete, FamilyID: familyID, IDs: append([]string(nil), ids...)})
	return nil
}

// Subscribe delivers the family's changes to handlers on a dedicated
// goroutine until the returned function is called.
func (p *GormPersistence) Subscribe(familyID string, handlers ChangeHandlers) func() {
	clientID := uuid.NewString()
	ch := p.hub.Subscribe(familyID, clientID)
	log := logger.Component("subscription")

	go func() {
		for change := range ch {
			switch change.Op {
			case ChangeInsert:
				if handlers.OnInsert != nil && change.Member != nil {
					handlers.OnInsert(change.Member.Clone())
				}
			case ChangeUpdate:
				if handlers.OnUpdate != nil && change.Member != nil {
					handlers.OnUpdate(change.Member.Clone())
				}
			case ChangeDelete:
				if handlers.OnDelete != nil {
					handlers.OnDelete(append([]string(nil), change.IDs...))
				}
			}
		}
		log.Debug().Str("family_id", familyID).Str("client_id", clientID).Msg("subscription closed")
	}()

	var once sync.Once
	return func() {
		once.Do(func() { p.hub.Unsubscribe(familyID, clientID) })
	}
}

func (p *GormPersistence) UploadPhoto(ctx context.Context, scope, filename string, r io.Reader) (string, error) {
	if p.uploads == nil {
		return "", errors.New("uploads are not configured")
	}
	return p.uploads.Upload(ctx, scope, filename, r)
}

// SetSelfLink overwrites the user's self-link, creating the profile if needed.
func (p *GormPersistence) SetSelfLink(ctx context.Context, userID uint, memberID *string) error {
	profile := models.Profile{UserID: userID, MemberID: memberID, UpdatedAt: time.Now()}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"member_id", "updated_at"}),
	}).Create(&profile).Error
}

func (p *GormPersistence) GetSelfLink(ctx context.Context, userID uint) (*string, error) {
	var profile models.Profile
	err := p.db.WithContext(ctx).Select("member_id").First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile.MemberID, nil
}

func (p *GormPersistence) ReleasablePhotos(ctx context.Context, familyID string, urls []string) ([]string, error) {
	return releasablePhotos(ctx, p.db, p.uploads, familyID, urls)
}

func releasablePhotos(ctx context.Context, db *gorm.DB, uploads *UploadService, familyID string, urls []string) ([]string, error) {
	if uploads == nil {
		return nil, nil
	}
	var owned []string
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		if !seen[url] && uploads.Owns(familyID, url) {
			seen[url] = true
			owned = append(owned, url)
		}
	}
	if len(owned) == 0 {
		return nil, nil
	}

	var photos, avatars []string
	db = db.WithContext(ctx)
	if err := db.Model(&models.Member{}).Where("photo_url IN ?", owned).Pluck("photo_url", &photos).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Profile{}).Where("avatar_url IN ?", owned).Pluck("avatar_url", &avatars).Error; err != nil {
		return nil, err
	}
	inUse := make(map[string]bool, len(photos)+len(avatars))
	for _, url := range append(photos, avatars...) {
		inUse[url] = true
	}

	released := owned[:0]
	for _, url := range owned {
		if !inUse[url] {
			released = append(released, url)
		}
	}
	return released, nil
}
