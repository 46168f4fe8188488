package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	"FamilyWell/internal/testutil"
	pkgerrors "FamilyWell/pkg/errors"
)

func TestAnalyzeFailsWhenClassifierUnavailable(t *testing.T) {
	e := newEnv(t)
	e.classifier.err = recognition.ErrNotLoaded
	fx := testutil.SeedFamily(t, e.db, "F1", 1)

	_, err := NewEmotionService(e.deps()).Analyze(context.Background(), fx.Members[0].ID, testPhoto(t), true)
	assert.ErrorIs(t, err, pkgerrors.ModelNotLoaded)
	assert.Equal(t, pkgerrors.KindDependencyUnavailable, pkgerrors.KindOf(err))
	assert.EqualValues(t, 0, e.count(t, &model.EmotionRecord{}))
}

func TestAnalyzeWithoutSaveWritesNothing(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)

	resp, err := NewEmotionService(e.deps()).Analyze(context.Background(), fx.Members[0].ID, testPhoto(t), false)
	require.NoError(t, err)
	assert.Equal(t, "happy", resp.Emotion.Emotion)
	assert.Nil(t, resp.RecordID)
	assert.Equal(t, 0, e.photos.count())
	assert.EqualValues(t, 0, e.count(t, &model.EmotionRecord{}))
}

func TestAnalyzeSaveStoresUnlinkedRecord(t *testing.T) {
	e := newEnv(t)
	e.classifier.result = emotionResult(model.EmotionSurprise, 0.66)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	member := fx.Members[0]
	svc := NewEmotionService(e.deps())

	resp, err := svc.Analyze(context.Background(), member.ID, testPhoto(t), true)
	require.NoError(t, err)
	require.NotNil(t, resp.RecordID)
	assert.Contains(t, resp.PhotoPath, "emotion_photos/F1-member1/analysis_")

	var rec model.EmotionRecord
	require.NoError(t, e.db.First(&rec, *resp.RecordID).Error)
	assert.Nil(t, rec.CheckinRecordID)
	assert.Equal(t, model.EmotionSurprise, rec.Emotion)

	items, page, err := svc.ListRecords(context.Background(), member.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 85.0, items[0].Score)
	assert.EqualValues(t, 1, page.Total)
}
