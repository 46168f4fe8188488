package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/testutil"
	pkgerrors "FamilyWell/pkg/errors"
)

func TestGetProfileWithoutCache(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)

	profile, err := NewUserService(e.deps()).GetProfile(context.Background(), fx.Members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "F1-member1", profile.Username)
	assert.Equal(t, "family_member", profile.Role)
	assert.False(t, profile.PhoneVerified)

	_, err = NewUserService(e.deps()).GetProfile(context.Background(), 999)
	assert.ErrorIs(t, err, pkgerrors.UserNotFound)
}

func TestUpdateContact(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	svc := NewUserService(e.deps())
	ctx := context.Background()
	id := fx.Members[0].ID

	bad := "not-an-email"
	_, err := svc.UpdateContact(ctx, id, &dto.UpdateContactRequest{Email: &bad})
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)

	tz := "Mars/Olympus"
	_, err = svc.UpdateContact(ctx, id, &dto.UpdateContactRequest{Timezone: &tz})
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)

	phone := "12345"
	_, err = svc.UpdateContact(ctx, id, &dto.UpdateContactRequest{Phone: &phone})
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)

	email := "grandma@example.com"
	tz = "Europe/Berlin"
	profile, err := svc.UpdateContact(ctx, id, &dto.UpdateContactRequest{Email: &email, Timezone: &tz})
	require.NoError(t, err)
	assert.Equal(t, email, profile.Email)
	assert.Equal(t, tz, profile.Timezone)
}
