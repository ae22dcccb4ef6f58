package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/utils"
	"gorm.io/gorm"
)

const defaultRefreshHours = 720

var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUserDisabled        = errors.New("user is disabled")
	ErrUsernameTaken       = errors.New("username already exists")
	ErrInvalidAuthType     = errors.New("invalid auth type")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrWrongPassword       = errors.New("incorrect old password")
	ErrNotLocalAccount     = errors.New("LDAP users cannot change password here")
)

// AuthService signs users in and manages their session tokens. Access
// tokens are JWTs; refresh tokens are random strings stored as sha256
// hashes and rotated on every use.
type AuthService struct {
	db          *gorm.DB
	ldapService *LDAPService
	jwtConfig   *config.JWTConfig
	configSvc   *SystemConfigService
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, ldapCfg *config.LDAPConfig) *AuthService {
	return &AuthService{
		db:          db,
		ldapService: NewLDAPService(ldapCfg),
		jwtConfig:   jwtCfg,
		configSvc:   NewSystemConfigService(db),
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
	FullName string `json:"full_name" binding:"max=200"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// Client identifies where a session was opened from.
type Client struct {
	IP        string
	UserAgent string
}

// TokenPair is the result of a sign-in or a refresh. User is nil after a
// refresh.
type TokenPair struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
	User            *models.User
}

// Login authenticates against the local store or LDAP and opens a session.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, client Client) (*TokenPair, error) {
	var (
		user *models.User
		err  error
	)
	switch req.AuthType {
	case "", "local":
		user, err = s.localAuth(ctx, req.Username, req.Password)
	case "ldap":
		user, err = s.ldapAuth(ctx, req.Username, req.Password)
	default:
		return nil, ErrInvalidAuthType
	}
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	life := s.lifetimes()
	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("last_login", now).Error; err != nil {
			return err
		}
		pair, _, err = openSession(tx, user, client, life)
		return err
	})
	if err != nil {
		return nil, err
	}
	user.LastLogin = &now
	pair.User = user
	return pair, nil
}

// Register creates a local account with an empty profile and signs it in.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest, client Client) (*TokenPair, error) {
	username := strings.TrimSpace(req.Username)
	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username: username,
		Password: hashed,
		Email:    req.Email,
		Role:     "user",
		AuthType: "local",
		IsActive: true,
	}

	var pair *TokenPair
	life := s.lifetimes()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := createUserWithProfile(tx, &user, req.FullName); err != nil {
			return err
		}
		pair, _, err = openSession(tx, &user, client, life)
		return err
	})
	if err != nil {
		return nil, err
	}
	pair.User = &user
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair and revokes the
// old one, pointing it at its replacement.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client Client) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	var pair *TokenPair
	life := s.lifetimes()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefreshToken
			}
			return err
		}
		switch {
		case stored.Revoked():
			return ErrRefreshTokenRevoked
		case stored.Expired(time.Now()):
			return ErrRefreshTokenExpired
		}

		var user models.User
		if err := tx.First(&user, stored.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefreshToken
			}
			return err
		}
		if !user.IsActive {
			return ErrUserDisabled
		}

		var (
			replacement *models.RefreshToken
			err         error
		)
		pair, replacement, err = openSession(tx, &user, client, life)
		if err != nil {
			return err
		}
		return tx.Model(&stored).Updates(map[string]interface{}{
			"revoked_at":           time.Now(),
			"replaced_by_token_id": replacement.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// RevokeRefreshToken ends a session. Unknown or empty tokens are ignored.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error
}

// sessionLifetime is read before a transaction opens so the config lookup
// does not need a second connection.
type sessionLifetime struct {
	accessHours  int
	refreshHours int
}

func (s *AuthService) lifetimes() sessionLifetime {
	return sessionLifetime{accessHours: s.accessTokenHours(), refreshHours: s.refreshTokenHours()}
}

// openSession signs an access token and stores a fresh refresh token on tx.
func openSession(tx *gorm.DB, user *models.User, client Client, life sessionLifetime) (*TokenPair, *models.RefreshToken, error) {
	access, err := utils.GenerateToken(user.ID, user.Username, user.Role, life.accessHours)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	record := &models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   now.Add(time.Duration(life.refreshHours) * time.Hour),
		CreatedByIP: client.IP,
		UserAgent:   client.UserAgent,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, nil, err
	}
	return &TokenPair{
		AccessToken:     access,
		AccessExpireAt:  now.Add(time.Duration(life.accessHours) * time.Hour),
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
	}, record, nil
}

// accessTokenHours prefers the admin-editable system config over the file
// config.
func (s *AuthService) accessTokenHours() int {
	return positiveHours(s.configSvc.GetWithDefault(models.ConfigAccessTokenHours, ""), s.jwtConfig.ExpireHour)
}

func (s *AuthService) refreshTokenHours() int {
	return positiveHours(s.configSvc.GetWithDefault(models.ConfigRefreshTokenHours, ""), defaultRefreshHours)
}

func positiveHours(value string, fallback int) int {
	hours, err := strconv.Atoi(value)
	if err != nil || hours <= 0 {
		return fallback
	}
	return hours
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) localAuth(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? AND auth_type = ?", username, "local").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// ldapAuth binds against the directory and mirrors the entry into a local
// user on first sign-in. The email is kept in sync afterwards.
func (s *AuthService) ldapAuth(ctx context.Context, username, password string) (*models.User, error) {
	entry, err := s.ldapService.Authenticate(username, password)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var user models.User
	err = db.Where("username = ? AND auth_type = ?", entry.Username, "ldap").First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username: entry.Username,
			Email:    entry.Email,
			Role:     "user",
			AuthType: "ldap",
			IsActive: true,
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			return createUserWithProfile(tx, &user, entry.FullName)
		}); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if entry.Email != user.Email {
		user.Email = entry.Email
		if err := db.Model(&user).Update("email", user.Email).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func createUserWithProfile(tx *gorm.DB, user *models.User, fullName string) error {
	if err := tx.Create(user).Error; err != nil {
		return err
	}
	profile := models.Profile{UserID: user.ID}
	if name := strings.TrimSpace(fullName); name != "" {
		profile.FullName = &name
	}
	return tx.Create(&profile).Error
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists creates the admin/admin account when no admin exists.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword("admin")
	if err != nil {
		return err
	}
	admin := models.User{
		Username: "admin",
		Password: hashed,
		Role:     "admin",
		AuthType: "local",
		IsActive: true,
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return createUserWithProfile(tx, &admin, "")
	})
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.ldapService.IsEnabled()
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return err
	}
	if user.AuthType != "local" {
		return ErrNotLocalAccount
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return ErrWrongPassword
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return db.Model(&user).Update("password", hashed).Error
}
