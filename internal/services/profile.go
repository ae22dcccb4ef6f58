package services

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/rebolloluis/family-tree/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileService struct {
	db      *gorm.DB
	uploads *UploadService
}

func NewProfileService(db *gorm.DB, uploads *UploadService) *ProfileService {
	return &ProfileService{db: db, uploads: uploads}
}

type ProfileRequest struct {
	FullName  *string `json:"full_name" binding:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=500"`
}

type AvatarResult struct {
	Profile     *models.Profile `json:"profile"`
	UploadError string          `json:"upload_error,omitempty"`
}

// Get returns the user's profile. A user without a row gets an empty one.
func (s *ProfileService) Get(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Profile{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileService) Update(ctx context.Context, userID uint, req *ProfileRequest) (*models.Profile, error) {
	profile := models.Profile{
		UserID:    userID,
		FullName:  blankToNil(req.FullName),
		AvatarURL: blankToNil(req.AvatarURL),
		UpdatedAt: time.Now(),
	}
	if err := s.upsert(ctx, &profile, "full_name", "avatar_url"); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// UploadAvatar stores a new avatar. When the upload fails the previous avatar
// stays and the error is reported on the result.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID uint, filename string, r io.Reader) (*AvatarResult, error) {
	url, err := s.uploads.Upload(ctx, "avatars/"+strconv.FormatUint(uint64(userID), 10), filename, r)
	if err != nil {
		profile, gerr := s.Get(ctx, userID)
		if gerr != nil {
			return nil, gerr
		}
		return &AvatarResult{Profile: profile, UploadError: (&UploadError{Err: err}).Error()}, nil
	}

	profile := models.Profile{UserID: userID, AvatarURL: &url, UpdatedAt: time.Now()}
	if err := s.upsert(ctx, &profile, "avatar_url"); err != nil {
		return nil, err
	}
	saved, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AvatarResult{Profile: saved}, nil
}

// ClearSelfLink removes the user's link to a member.
func (s *ProfileService) ClearSelfLink(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Update("member_id", nil).Error
}

func (s *ProfileService) upsert(ctx context.Context, profile *models.Profile, columns ...string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(profile).Error
}
