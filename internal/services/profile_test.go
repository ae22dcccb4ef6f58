package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService(t *testing.T) {
	db := newTestDB(t)
	store, err := NewLocalPhotoStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	svc := NewProfileService(db, NewUploadService(store, 1<<20))
	ctx := context.Background()

	empty, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), empty.UserID)
	assert.Nil(t, empty.FullName)

	p, err := svc.Update(ctx, 3, &ProfileRequest{FullName: idPtr(" Catelyn Tully ")})
	require.NoError(t, err)
	require.NotNil(t, p.FullName)
	assert.Equal(t, "Catelyn Tully", *p.FullName)

	res, err := svc.UploadAvatar(ctx, 3, "cat.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Empty(t, res.UploadError)
	require.NotNil(t, res.Profile.AvatarURL)
	avatar := *res.Profile.AvatarURL
	assert.True(t, strings.HasPrefix(avatar, "/uploads/avatars_3/"))
	require.NotNil(t, res.Profile.FullName, "avatar upload keeps the name")

	res, err = svc.UploadAvatar(ctx, 3, "cat.exe", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.NotEmpty(t, res.UploadError)
	require.NotNil(t, res.Profile.AvatarURL)
	assert.Equal(t, avatar, *res.Profile.AvatarURL)

	require.NoError(t, db.Model(&models.Profile{}).Where("user_id = ?", 3).Update("member_id", "member-1").Error)
	require.NoError(t, svc.ClearSelfLink(ctx, 3))
	got, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, got.MemberID)
}
