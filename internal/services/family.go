package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/pkg/logger"
	"gorm.io/gorm"
)

var ErrNotOwner = errors.New("only the family owner can do this")

type FamilyService struct {
	db *gorm.DB

	hub     *ChangeHub
	queue   TaskQueue
	uploads *UploadService
}

func NewFamilyService(db *gorm.DB) *FamilyService {
	return &FamilyService{db: db}
}

// Notify makes Delete announce the removed members on hub and queue cleanup
// of their photos. Any argument may be nil.
func (s *FamilyService) Notify(hub *ChangeHub, queue TaskQueue, uploads *UploadService) *FamilyService {
	s.hub = hub
	s.queue = queue
	s.uploads = uploads
	return s
}

type FamilyRequest struct {
	Name        string  `json:"name" binding:"max=200"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

func (r *FamilyRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return &genealogy.ValidationError{Field: "name", Message: "name is required"}
	}
	r.Description = blankToNil(r.Description)
	return nil
}

func (s *FamilyService) Create(ctx context.Context, ownerID uint, req *FamilyRequest) (*models.Family, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	family := models.Family{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
	}
	if err := s.db.WithContext(ctx).Create(&family).Error; err != nil {
		return nil, err
	}
	return &family, nil
}

// ListOwned returns the caller's families, newest first.
func (s *FamilyService) ListOwned(ctx context.Context, ownerID uint) ([]models.Family, error) {
	var families []models.Family
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&families).Error; err != nil {
		return nil, err
	}
	return families, nil
}

// ListAll returns every family, newest first.
func (s *FamilyService) ListAll(ctx context.Context) ([]models.Family, error) {
	var families []models.Family
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&families).Error; err != nil {
		return nil, err
	}
	return families, nil
}

func (s *FamilyService) Get(ctx context.Context, id string) (*models.Family, error) {
	var family models.Family
	if err := s.db.WithContext(ctx).First(&family, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, err
	}
	return &family, nil
}

func (s *FamilyService) Update(ctx context.Context, id string, userID uint, req *FamilyRequest) (*models.Family, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	family, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if family.OwnerID != userID {
		return nil, ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Model(family).Updates(map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
	}).Error; err != nil {
		return nil, err
	}
	family.Name = req.Name
	family.Description = req.Description
	return family, nil
}

// Delete removes the family with all of its members. Profiles linked to one
// of the members lose their self-link.
func (s *FamilyService) Delete(ctx context.Context, id string, userID uint) error {
	family, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if family.OwnerID != userID {
		return ErrNotOwner
	}

	var members []models.Member
	if err := s.db.WithContext(ctx).Select("id", "photo_url").Where("family_id = ?", id).Find(&members).Error; err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&models.Member{}).Select("id").Where("family_id = ?", id)
		if err := tx.Model(&models.Profile{}).
			Where("member_id IN (?)", ids).
			Update("member_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("family_id = ?", id).Delete(&models.Member{}).Error; err != nil {
			return err
		}
		return tx.Delete(family).Error
	})
	if err != nil {
		return err
	}
	s.afterDelete(ctx, id, members)
	return nil
}

func (s *FamilyService) afterDelete(ctx context.Context, familyID string, members []models.Member) {
	if len(members) == 0 {
		return
	}
	ids := make([]string, 0, len(members))
	var urls []string
	for _, m := range members {
		ids = append(ids, m.ID)
		if m.PhotoURL != nil {
			urls = append(urls, *m.PhotoURL)
		}
	}
	if s.hub != nil {
		s.hub.Publish(MemberChange{Op: ChangeDelete, FamilyID: familyID, IDs: ids})
	}
	if s.queue == nil || len(urls) == 0 {
		return
	}

	released, err := releasablePhotos(ctx, s.db, s.uploads, familyID, urls)
	if err != nil {
		logger.Warn().Err(err).Str("family_id", familyID).Msg("photo references not checked, cleanup skipped")
		return
	}
	if len(released) == 0 {
		return
	}
	if err := s.queue.Enqueue(&PhotoCleanupTask{FamilyID: familyID, MemberIDs: ids, URLs: released}); err != nil {
		logger.Warn().Err(err).Str("family_id", familyID).Msg("photo cleanup not queued")
	}
}
