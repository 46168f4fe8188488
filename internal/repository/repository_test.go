package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/testutil"
)

func record(task *model.CheckinTask, user *model.User, date string, at time.Time, status model.CheckinStatus) *model.CheckinRecord {
	return &model.CheckinRecord{
		TaskID:      task.ID,
		UserID:      user.ID,
		FamilyID:    task.FamilyID,
		CheckinTime: at.UTC(),
		CheckinDate: date,
		Status:      status,
	}
}

func TestCreateWithEmotionLinksRecords(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	task := testutil.DailyTask(t, db, fx, "晨练", "09:00")
	member := fx.Members[0]

	rec := record(task, member, "2026-03-02", time.Date(2026, 3, 2, 1, 10, 0, 0, time.UTC), model.CheckinStatusOnTime)
	emo := &model.EmotionRecord{UserID: member.ID, FamilyID: member.FamilyID, Emotion: model.EmotionHappy, Confidence: 0.9, RecordedAt: rec.CheckinTime}

	require.NoError(t, repos.Checkins.CreateWithEmotion(ctx, rec, emo))
	require.NotNil(t, emo.CheckinRecordID)
	assert.Equal(t, rec.ID, *emo.CheckinRecordID)

	exists, err := repos.Checkins.Exists(ctx, task.ID, member.ID, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateWithEmotionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	task := testutil.DailyTask(t, db, fx, "晨练", "09:00")
	member := fx.Members[0]

	// 删除表后表情记录写入必然失败
	require.NoError(t, db.Migrator().DropTable(&model.EmotionRecord{}))

	rec := record(task, member, "2026-03-02", time.Now(), model.CheckinStatusOnTime)
	emo := &model.EmotionRecord{UserID: member.ID, Emotion: model.EmotionSad, Confidence: 0.8, RecordedAt: time.Now().UTC()}
	require.Error(t, repos.Checkins.CreateWithEmotion(ctx, rec, emo))

	var count int64
	require.NoError(t, db.Model(&model.CheckinRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDuplicateCheckinViolatesUniqueIndex(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	task := testutil.DailyTask(t, db, fx, "晨练", "")
	member := fx.Members[0]

	require.NoError(t, repos.Checkins.CreateWithEmotion(ctx, record(task, member, "2026-03-02", time.Now(), model.CheckinStatusOnTime), nil))
	err := repos.Checkins.CreateWithEmotion(ctx, record(task, member, "2026-03-02", time.Now(), model.CheckinStatusOnTime), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestMarkLateIsGuarded(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	task := testutil.DailyTask(t, db, fx, "晨练", "09:00")

	rec := record(task, fx.Members[0], "2026-03-02", time.Now(), model.CheckinStatusOnTime)
	sched := time.Now().Add(-time.Hour).UTC()
	rec.ScheduledTime = &sched
	require.NoError(t, repos.Checkins.CreateWithEmotion(ctx, rec, nil))

	candidates, err := repos.Checkins.ListOnTimeScheduled(ctx, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	changed, err := repos.Checkins.MarkLate(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repos.Checkins.MarkLate(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	candidates, err = repos.Checkins.ListOnTimeScheduled(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestListActiveMembersFiltersRoleAndStatus(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 3)

	require.NoError(t, db.Model(fx.Members[2]).Update("status", model.UserStatusSuspended).Error)

	members, err := repos.Users.ListActiveMembers(ctx, fx.Family.ID, model.RoleFamilyMember)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, fx.Members[0].ID, members[0].ID)

	all, err := repos.Users.ListActiveMembers(ctx, fx.Family.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3) // 含管理员
}

func TestListActiveInFamilyIgnoresOtherFamilies(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	other := testutil.SeedFamily(t, db, "F2", 1)

	users, err := repos.Users.ListActiveInFamily(ctx, fx.Family.ID, []int64{fx.Members[0].ID, other.Members[0].ID})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, fx.Members[0].ID, users[0].ID)
}

func TestAddTemplatesMarksFirstPrimary(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 1)
	member := fx.Members[0]

	first := []*model.FaceTemplate{
		model.NewFaceTemplate(0, []float32{0.1, 0.2}, "a.jpg", 1),
		model.NewFaceTemplate(0, []float32{0.3, 0.4}, "b.jpg", 1),
	}
	total, err := repos.Faces.AddTemplates(ctx, member.ID, first)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.True(t, first[0].IsPrimary)
	assert.False(t, first[1].IsPrimary)

	more := []*model.FaceTemplate{model.NewFaceTemplate(0, []float32{0.5, 0.6}, "c.jpg", 1)}
	total, err = repos.Faces.AddTemplates(ctx, member.ID, more)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.False(t, more[0].IsPrimary)

	user, err := repos.Users.GetByID(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, user.FaceRegistered)
	assert.Equal(t, 3, user.FaceEncodingsCount)

	templates, err := repos.Faces.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 3)
	vec, err := model.DecodeVector(templates[2].Vector)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.6}, vec, 1e-6)
}

func TestListActiveTemplatesSkipsInactiveUsers(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 2)

	_, err := repos.Faces.AddTemplates(ctx, fx.Members[0].ID, []*model.FaceTemplate{model.NewFaceTemplate(0, []float32{1}, "", 1)})
	require.NoError(t, err)
	_, err = repos.Faces.AddTemplates(ctx, fx.Members[1].ID, []*model.FaceTemplate{model.NewFaceTemplate(0, []float32{2}, "", 1)})
	require.NoError(t, err)
	require.NoError(t, db.Model(fx.Members[1]).Update("status", model.UserStatusInactive).Error)

	templates, err := repos.Faces.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, fx.Members[0].ID, templates[0].UserID)
}

func TestNotificationTransitions(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 0)

	n := &model.Notification{
		NotificationType: model.NotificationTypeInApp,
		RecipientID:      fx.Admin.ID,
		Subject:          "s",
		Content:          "c",
		Status:           model.NotificationStatusPending,
	}
	require.NoError(t, repos.Notifications.Create(ctx, n))

	// pending 不能直接已读
	ok, err := repos.Notifications.MarkRead(ctx, n.ID, fx.Admin.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	// 未领取不能直接改为 sent
	ok, err = repos.Notifications.MarkSent(ctx, n.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repos.Notifications.Claim(ctx, n.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Notifications.Claim(ctx, n.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second dispatcher must not claim the same row")

	ok, err = repos.Notifications.MarkSent(ctx, n.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Notifications.MarkFailed(ctx, n.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	unread, err := repos.Notifications.CountUnread(ctx, fx.Admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	readAt := time.Now().Add(-40 * 24 * time.Hour)
	ok, err = repos.Notifications.MarkRead(ctx, n.ID, fx.Admin.ID, readAt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repos.Notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRead, got.Status)
	require.NotNil(t, got.SentAt)
	require.NotNil(t, got.ReadAt)

	deleted, err := repos.Notifications.DeleteReadBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = repos.Notifications.GetByID(ctx, n.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNotificationListPagination(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repos := New(db)
	fx := testutil.SeedFamily(t, db, "F1", 0)

	var batch []*model.Notification
	for i := 0; i < 5; i++ {
		typ := model.NotificationTypeInApp
		if i%2 == 0 {
			typ = model.NotificationTypeEmail
		}
		batch = append(batch, &model.Notification{
			NotificationType: typ,
			RecipientID:      fx.Admin.ID,
			Subject:          "s",
			Content:          "c",
			Status:           model.NotificationStatusPending,
		})
	}
	require.NoError(t, repos.Notifications.CreateBatch(ctx, batch))

	items, total, err := repos.Notifications.List(ctx, fx.Admin.ID, NotificationFilter{Type: model.NotificationTypeEmail}, Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2)

	pending, err := repos.Notifications.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 5)
}

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = Page{Page: 3, PageSize: 500}.Normalize()
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 200, p.Offset())
}
