package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamilyService_CRUD(t *testing.T) {
	db := newTestDB(t)
	svc := NewFamilyService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, &FamilyRequest{Name: "   "})
	var verr *genealogy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	stark, err := svc.Create(ctx, 1, &FamilyRequest{Name: " Stark ", Description: idPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, "Stark", stark.Name)
	assert.Nil(t, stark.Description)
	assert.NotEmpty(t, stark.ID)

	_, err = svc.Create(ctx, 2, &FamilyRequest{Name: "Lannister"})
	require.NoError(t, err)

	owned, err := svc.ListOwned(ctx, 1)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, stark.ID, owned[0].ID)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Update(ctx, stark.ID, 2, &FamilyRequest{Name: "Bolton"})
	assert.ErrorIs(t, err, ErrNotOwner)

	updated, err := svc.Update(ctx, stark.ID, 1, &FamilyRequest{Name: "House Stark", Description: idPtr("Winter is coming")})
	require.NoError(t, err)
	assert.Equal(t, "House Stark", updated.Name)
	require.NotNil(t, updated.Description)

	got, err := svc.Get(ctx, stark.ID)
	require.NoError(t, err)
	assert.Equal(t, "House Stark", got.Name)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrFamilyNotFound)
}

func TestFamilyService_DeleteRemovesMembersAndSelfLinks(t *testing.T) {
	db := newTestDB(t)
	svc := NewFamilyService(db)
	ctx := context.Background()

	stark, err := svc.Create(ctx, 1, &FamilyRequest{Name: "Stark"})
	require.NoError(t, err)
	tully, err := svc.Create(ctx, 1, &FamilyRequest{Name: "Tully"})
	require.NoError(t, err)

	ned := models.Member{FamilyID: stark.ID, Name: "Ned"}
	hoster := models.Member{FamilyID: tully.ID, Name: "Hoster"}
	require.NoError(t, db.Create(&ned).Error)
	require.NoError(t, db.Create(&hoster).Error)
	require.NoError(t, db.Create(&models.Profile{UserID: 7, MemberID: &ned.ID}).Error)
	require.NoError(t, db.Create(&models.Profile{UserID: 8, MemberID: &hoster.ID}).Error)

	assert.ErrorIs(t, svc.Delete(ctx, stark.ID, 2), ErrNotOwner)
	require.NoError(t, svc.Delete(ctx, stark.ID, 1))

	_, err = svc.Get(ctx, stark.ID)
	assert.ErrorIs(t, err, ErrFamilyNotFound)

	var count int64
	db.Model(&models.Member{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var p7, p8 models.Profile
	require.NoError(t, db.First(&p7, "user_id = ?", 7).Error)
	require.NoError(t, db.First(&p8, "user_id = ?", 8).Error)
	assert.Nil(t, p7.MemberID)
	require.NotNil(t, p8.MemberID)
	assert.Equal(t, hoster.ID, *p8.MemberID)
}

func TestFamilyService_DeleteNotifiesAndReleasesPhotos(t *testing.T) {
	db := newTestDB(t)
	store, err := NewLocalPhotoStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	uploads := NewUploadService(store, 1<<20)
	hub := NewChangeHub()
	queue := NewSyncQueue()
	queue.SetProcessor(NewPhotoCleanupProcessor(uploads))
	svc := NewFamilyService(db).Notify(hub, queue, uploads)
	ctx := context.Background()

	stark, err := svc.Create(ctx, 1, &FamilyRequest{Name: "Stark"})
	require.NoError(t, err)
	photo, err := uploads.Upload(ctx, stark.ID, "ned.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	avatar, err := uploads.Upload(ctx, "avatars/1", "me.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Profile{UserID: 1, AvatarURL: &avatar}).Error)

	ned := models.Member{FamilyID: stark.ID, Name: "Ned", PhotoURL: &photo}
	me := models.Member{FamilyID: stark.ID, Name: "Me", PhotoURL: &avatar}
	require.NoError(t, db.Create(&ned).Error)
	require.NoError(t, db.Create(&me).Error)

	events := hub.Subscribe(stark.ID, "viewer")
	require.NoError(t, svc.Delete(ctx, stark.ID, 1))
	require.NoError(t, queue.Close())

	select {
	case change := <-events:
		assert.Equal(t, ChangeDelete, change.Op)
		assert.ElementsMatch(t, []string{ned.ID, me.ID}, change.IDs)
	case <-time.After(time.Second):
		t.Fatal("no delete published for the removed members")
	}

	assert.False(t, storedFile(t, uploads, photo), "member photo should be removed")
	assert.True(t, storedFile(t, uploads, avatar), "avatar must survive")
}
