package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/utils"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	utils.SetJWTSecret("test-secret")
	db := newTestDB(t)
	if err := models.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewAuthService(db, &config.JWTConfig{Secret: "test-secret", ExpireHour: 24}, &config.LDAPConfig{})
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterRequest{Username: " arya ", Password: "needle", FullName: "Arya Stark"}, Client{IP: "127.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.User.Username != "arya" {
		t.Errorf("Username = %q, expected %q", reg.User.Username, "arya")
	}
	if reg.AccessToken == "" || reg.RefreshToken == "" {
		t.Fatal("Register() should issue both tokens")
	}

	claims, err := utils.ParseToken(reg.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Errorf("claims.UserID = %d, expected %d", claims.UserID, reg.User.ID)
	}

	var profile models.Profile
	if err := svc.db.First(&profile, "user_id = ?", reg.User.ID).Error; err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	if profile.FullName == nil || *profile.FullName != "Arya Stark" {
		t.Errorf("FullName = %v, expected Arya Stark", profile.FullName)
	}

	if _, err := svc.Register(ctx, &RegisterRequest{Username: "arya", Password: "another"}, Client{}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("second Register() error = %v, expected ErrUsernameTaken", err)
	}

	login, err := svc.Login(ctx, &LoginRequest{Username: "arya", Password: "needle"}, Client{})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.LastLogin == nil {
		t.Error("Login() should set LastLogin")
	}

	if _, err := svc.Login(ctx, &LoginRequest{Username: "arya", Password: "wrong"}, Client{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() with wrong password error = %v", err)
	}
	if _, err := svc.Login(ctx, &LoginRequest{Username: "arya", Password: "needle", AuthType: "kerberos"}, Client{}); !errors.Is(err, ErrInvalidAuthType) {
		t.Error("Login() with unknown auth type should fail")
	}
	if _, err := svc.Login(ctx, &LoginRequest{Username: "arya", Password: "needle", AuthType: "ldap"}, Client{}); !errors.Is(err, ErrLDAPDisabled) {
		t.Errorf("Login() over disabled LDAP error = %v", err)
	}
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterRequest{Username: "bran", Password: "raven1"}, Client{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	refreshed, err := svc.Refresh(ctx, reg.RefreshToken, Client{})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken == reg.RefreshToken {
		t.Error("Refresh() should rotate the refresh token")
	}

	if _, err := svc.Refresh(ctx, reg.RefreshToken, Client{}); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Errorf("reusing a rotated refresh token error = %v, expected ErrRefreshTokenRevoked", err)
	}

	var old models.RefreshToken
	if err := svc.db.Where("token_hash = ?", hashRefreshToken(reg.RefreshToken)).First(&old).Error; err != nil {
		t.Fatalf("load rotated token: %v", err)
	}
	if old.ReplacedByTokenID == nil {
		t.Error("rotated token should point at its replacement")
	}

	if err := svc.RevokeRefreshToken(ctx, refreshed.RefreshToken); err != nil {
		t.Fatalf("RevokeRefreshToken() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken, Client{}); err == nil {
		t.Error("revoked refresh token should fail")
	}
	if _, err := svc.Refresh(ctx, "", Client{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("empty refresh token error = %v", err)
	}
	if _, err := svc.Refresh(ctx, "not-a-token", Client{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("unknown refresh token error = %v", err)
	}
}

func TestAuthService_DisabledUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterRequest{Username: "theon", Password: "ironborn"}, Client{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := svc.db.Model(&models.User{}).Where("id = ?", reg.User.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("disable user: %v", err)
	}

	if _, err := svc.Login(ctx, &LoginRequest{Username: "theon", Password: "ironborn"}, Client{}); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("Login() error = %v, expected ErrUserDisabled", err)
	}
	if _, err := svc.Refresh(ctx, reg.RefreshToken, Client{}); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("Refresh() error = %v, expected ErrUserDisabled", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterRequest{Username: "sansa", Password: "lemoncake"}, Client{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.ChangePassword(ctx, reg.User.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "winterfell"}); err == nil {
		t.Error("ChangePassword() with wrong old password should fail")
	}
	if err := svc.ChangePassword(ctx, reg.User.ID, &ChangePasswordRequest{OldPassword: "lemoncake", NewPassword: "winterfell"}); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.Login(ctx, &LoginRequest{Username: "sansa", Password: "winterfell"}, Client{}); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestAuthService_CreateAdminIfNotExists(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.CreateAdminIfNotExists(ctx); err != nil {
			t.Fatalf("CreateAdminIfNotExists() error = %v", err)
		}
	}

	var count int64
	svc.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one admin, got %d", count)
	}
}

func TestAuthService_TokenLifetimeFromSystemConfig(t *testing.T) {
	svc := newTestAuthService(t)

	if got := svc.accessTokenHours(); got != 24 {
		t.Errorf("access hours = %d, expected seeded 24", got)
	}
	if err := svc.configSvc.Set("auth_access_token_expire_hours", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := svc.accessTokenHours(); got != 2 {
		t.Errorf("access hours = %d, expected 2", got)
	}
	if err := svc.configSvc.Set("auth_refresh_token_expire_hours", "oops"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := svc.refreshTokenHours(); got != 720 {
		t.Errorf("refresh hours = %d, expected fallback 720", got)
	}
}
