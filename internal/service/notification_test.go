package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/testutil"
	pkgerrors "FamilyWell/pkg/errors"
)

func TestMarkReadRequiresSent(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	n := pending(t, e, member, model.NotificationTypeInApp, "")
	svc := NewNotificationService(e.deps())

	_, err := svc.MarkRead(context.Background(), member.ID, n.ID)
	assert.ErrorIs(t, err, pkgerrors.NotificationNotReadable)

	markSent(t, e, n.ID)

	item, err := svc.MarkRead(context.Background(), member.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.NotificationStatusRead), item.Status)
	require.NotNil(t, item.ReadAt)

	_, err = svc.MarkRead(context.Background(), member.ID, n.ID)
	assert.ErrorIs(t, err, pkgerrors.NotificationNotReadable)
}

func TestNotificationsAreScopedToRecipient(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	n := pending(t, e, fx.Members[0], model.NotificationTypeInApp, "")
	svc := NewNotificationService(e.deps())

	_, err := svc.Get(context.Background(), fx.Admin.ID, n.ID)
	assert.ErrorIs(t, err, pkgerrors.NotificationNotFound)

	_, err = svc.MarkRead(context.Background(), fx.Admin.ID, n.ID)
	assert.ErrorIs(t, err, pkgerrors.NotificationNotFound)
}

func TestListNotificationsWithUnreadCount(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	pending(t, e, member, model.NotificationTypeInApp, "")
	pending(t, e, member, model.NotificationTypeInApp, "")
	failed := pending(t, e, member, model.NotificationTypeEmail, "")
	_, err := e.repos.Notifications.Claim(context.Background(), failed.ID, e.now)
	require.NoError(t, err)
	_, err = e.repos.Notifications.MarkFailed(context.Background(), failed.ID, "boom")
	require.NoError(t, err)

	svc := NewNotificationService(e.deps())
	res, err := svc.List(context.Background(), member.ID, dto.NotificationListQuery{Type: "in_app"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.EqualValues(t, 2, res.Page.Total)
	assert.EqualValues(t, 2, res.UnreadCount)

	_, err = svc.List(context.Background(), member.ID, dto.NotificationListQuery{Status: "archived"})
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)
}

func TestCleanupReadHonorsRetention(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	ctx := context.Background()

	old := pending(t, e, member, model.NotificationTypeInApp, "")
	recent := pending(t, e, member, model.NotificationTypeInApp, "")
	unread := pending(t, e, member, model.NotificationTypeInApp, "")
	for _, n := range []*model.Notification{old, recent, unread} {
		markSent(t, e, n.ID)
	}
	_, err := e.repos.Notifications.MarkRead(ctx, old.ID, member.ID, e.now.AddDate(0, 0, -31))
	require.NoError(t, err)
	_, err = e.repos.Notifications.MarkRead(ctx, recent.ID, member.ID, e.now.AddDate(0, 0, -1))
	require.NoError(t, err)

	deleted, err := NewNotificationService(e.deps()).CleanupRead(ctx, e.now, 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.EqualValues(t, 2, e.count(t, &model.Notification{}))
}
