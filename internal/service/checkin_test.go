package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/testutil"
	pkgerrors "FamilyWell/pkg/errors"
)

func TestSubmitSkipsVerifierWithoutEnrollment(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)

	assert.False(t, out.FaceVerified)
	assert.Equal(t, 0, e.verifier.calls())
}

func TestSubmitVerifiesEnrolledUser(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	require.NoError(t, e.db.Model(member).Update("face_registered", true).Error)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: member.ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)

	assert.True(t, out.FaceVerified)
	assert.Equal(t, 1, e.verifier.calls())
}

func TestSubmitVerifierFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	e.verifier.verifyErr = recognition.ErrNotLoaded
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	require.NoError(t, e.db.Model(member).Update("face_registered", true).Error)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: member.ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)
	assert.False(t, out.FaceVerified)
}

func TestSubmitTwiceSameDayConflicts(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")
	svc := NewCheckinService(e.deps())
	in := SubmitInput{TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t)}

	_, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)

	e.now = e.now.Add(2 * time.Hour)
	_, err = svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, pkgerrors.AlreadyCheckedIn)
	assert.Equal(t, pkgerrors.KindConflict, pkgerrors.KindOf(err))

	assert.EqualValues(t, 1, e.count(t, &model.CheckinRecord{}))
	assert.EqualValues(t, 1, e.count(t, &model.EmotionRecord{}))
	assert.Equal(t, 1, e.photos.count())
}

func TestSubmitNextDayIsAllowed(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")
	svc := NewCheckinService(e.deps())
	in := SubmitInput{TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t)}

	_, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)

	e.now = e.now.AddDate(0, 0, 1)
	_, err = svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.count(t, &model.CheckinRecord{}))
}

func TestSubmitSurvivesClassifierOutage(t *testing.T) {
	e := newEnv(t)
	e.classifier.err = recognition.ErrNotLoaded
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)
	assert.Nil(t, out.Emotion)
	assert.Nil(t, out.EmotionRecordID)

	var rec model.CheckinRecord
	require.NoError(t, e.db.First(&rec, out.RecordID).Error)
	assert.Nil(t, rec.EmotionDetected)
	assert.Nil(t, rec.EmotionConfidence)
	assert.EqualValues(t, 0, e.count(t, &model.EmotionRecord{}))
}

func TestSubmitLateBoundary(t *testing.T) {
	cases := []struct {
		clock  string
		status model.CheckinStatus
	}{
		{"09:25", model.CheckinStatusOnTime},
		{"09:30", model.CheckinStatusOnTime},
		{"09:31", model.CheckinStatusLate},
	}

	for _, tc := range cases {
		t.Run(tc.clock, func(t *testing.T) {
			e := newEnv(t)
			at, err := time.ParseInLocation("2006-01-02 15:04", "2026-10-15 "+tc.clock, shanghai)
			require.NoError(t, err)
			e.now = at

			fx := testutil.SeedFamily(t, e.db, "F1", 1)
			task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

			out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
				TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
			})
			require.NoError(t, err)
			assert.Equal(t, string(tc.status), out.Status)
			require.NotNil(t, out.ScheduledTime)
			assert.True(t, out.ScheduledTime.Equal(time.Date(2026, 10, 15, 9, 0, 0, 0, shanghai)))
		})
	}
}

func TestSubmitUnscheduledTaskIsOnTime(t *testing.T) {
	e := newEnv(t)
	e.now = time.Date(2026, 10, 15, 23, 50, 0, 0, shanghai)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "随手拍", "")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.CheckinStatusOnTime), out.Status)
	assert.Nil(t, out.ScheduledTime)
}

func TestSubmitRejectsUnresolvableTask(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 2)
	other := testutil.SeedFamily(t, e.db, "F2", 1)

	restricted := testutil.DailyTask(t, e.db, fx, "仅成员1", "09:00", fx.Members[0].ID)
	foreign := testutil.DailyTask(t, e.db, other, "别人家", "09:00")
	inactive := testutil.DailyTask(t, e.db, fx, "已停用", "09:00")
	require.NoError(t, e.db.Model(inactive).Update("is_active", false).Error)

	svc := NewCheckinService(e.deps())
	for name, taskID := range map[string]int64{
		"outside targets": restricted.ID,
		"other family":    foreign.ID,
		"inactive":        inactive.ID,
		"missing":         999,
	} {
		_, err := svc.Submit(context.Background(), SubmitInput{
			TaskID: taskID, UserID: fx.Members[1].ID, Photo: testPhoto(t),
		})
		assert.ErrorIs(t, err, pkgerrors.TaskNotFound, name)
	}
	assert.EqualValues(t, 0, e.count(t, &model.CheckinRecord{}))
	assert.Equal(t, 0, e.photos.count())
}

func TestSubmitRejectsUndecodablePhoto(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	_, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: []byte("not an image"),
	})
	assert.ErrorIs(t, err, pkgerrors.InvalidPhoto)
	assert.EqualValues(t, 0, e.count(t, &model.CheckinRecord{}))
	assert.Equal(t, 0, e.photos.count())
}

func TestSubmitFailsWhenPhotoCannotBeStored(t *testing.T) {
	e := newEnv(t)
	e.photos.err = errors.New("disk full")
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	_, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	assert.ErrorIs(t, err, pkgerrors.PersistenceFailed)
	assert.Equal(t, 0, e.classifier.calls)
	assert.EqualValues(t, 0, e.count(t, &model.CheckinRecord{}))
}

func TestSubmitPersistsLinkedEmotion(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
		Location: map[string]interface{}{"city": "杭州"},
	})
	require.NoError(t, err)
	require.NotNil(t, out.EmotionRecordID)
	require.NotNil(t, out.Emotion)
	assert.Equal(t, "happy", out.Emotion.Emotion)
	assert.Equal(t, 90.0, out.Emotion.Score)
	assert.Contains(t, out.PhotoPath, "emotion_photos/F1-member1/checkin_20261015_092500_")

	var emotion model.EmotionRecord
	require.NoError(t, e.db.First(&emotion, *out.EmotionRecordID).Error)
	require.NotNil(t, emotion.CheckinRecordID)
	assert.Equal(t, out.RecordID, *emotion.CheckinRecordID)

	var rec model.CheckinRecord
	require.NoError(t, e.db.First(&rec, out.RecordID).Error)
	assert.Equal(t, "2026-10-15", rec.CheckinDate)
	assert.Equal(t, "杭州", rec.Location["city"])
	assert.NotEmpty(t, rec.AIAnalysis)
}

func TestSubmitNegativeEmotionAlertsAdmin(t *testing.T) {
	e := newEnv(t)
	e.classifier.result = emotionResult(model.EmotionSad, 0.9)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	out, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)

	var alerts []model.Notification
	require.NoError(t, e.db.Find(&alerts).Error)
	require.Len(t, alerts, 1)
	assert.Equal(t, fx.Admin.ID, alerts[0].RecipientID)
	assert.Equal(t, model.NotificationTypeEmail, alerts[0].NotificationType)
	assert.Equal(t, model.NotificationStatusPending, alerts[0].Status)
	assert.Equal(t, model.RelatedEmotionRecord, alerts[0].RelatedType)
	assert.Equal(t, *out.EmotionRecordID, *alerts[0].RelatedID)
	assert.Equal(t, []int64{alerts[0].ID}, e.publisher.ids)
}

func TestSubmitAlertThresholdIsStrict(t *testing.T) {
	e := newEnv(t)
	e.classifier.result = emotionResult(model.EmotionAngry, 0.7)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	_, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, e.count(t, &model.Notification{}))
}

func TestSubmitSucceedsWhenAlertPublishFails(t *testing.T) {
	e := newEnv(t)
	e.classifier.result = emotionResult(model.EmotionFear, 0.95)
	e.publisher.err = errors.New("broker down")
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")

	_, err := NewCheckinService(e.deps()).Submit(context.Background(), SubmitInput{
		TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.count(t, &model.Notification{}))
}
