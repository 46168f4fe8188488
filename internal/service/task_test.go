package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/testutil"
	pkgerrors "FamilyWell/pkg/errors"
)

func TestCreateTaskRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)

	_, err := NewCheckinService(e.deps()).CreateTask(context.Background(), fx.Members[0].ID, &dto.CreateTaskRequest{
		TaskName: "早安", TaskType: "daily", ScheduleTime: "09:00",
	})
	assert.ErrorIs(t, err, pkgerrors.Forbidden)
}

func TestCreateTaskValidates(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	other := testutil.SeedFamily(t, e.db, "F2", 1)
	svc := NewCheckinService(e.deps())
	monday := 1

	cases := map[string]*dto.CreateTaskRequest{
		"bad type":        {TaskName: "x", TaskType: "hourly"},
		"bad time":        {TaskName: "x", TaskType: "daily", ScheduleTime: "25:00"},
		"empty name":      {TaskName: "  ", TaskType: "daily"},
		"weekday daily":   {TaskName: "x", TaskType: "daily", Weekday: &monday},
		"foreign member":  {TaskName: "x", TaskType: "daily", TargetMembers: []int64{other.Members[0].ID}},
		"threshold above": {TaskName: "x", TaskType: "daily", EmotionThreshold: 1.5},
	}
	for name, req := range cases {
		_, err := svc.CreateTask(context.Background(), fx.Admin.ID, req)
		assert.ErrorIs(t, err, pkgerrors.InvalidTaskConfig, name)
	}
	assert.EqualValues(t, 0, e.count(t, &model.CheckinTask{}))
}

func TestCreateAndUpdateTask(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 2)
	svc := NewCheckinService(e.deps())
	ctx := context.Background()

	item, err := svc.CreateTask(ctx, fx.Admin.ID, &dto.CreateTaskRequest{
		TaskName: "晚安", TaskType: "daily", ScheduleTime: "7:30",
		TargetMembers: []int64{fx.Members[0].ID, fx.Members[0].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "07:30", item.ScheduleTime)
	assert.Equal(t, []int64{fx.Members[0].ID}, item.TargetMembers)
	assert.Equal(t, 0.7, item.EmotionAlertAt)

	inactive := false
	threshold := 0.8
	updated, err := svc.UpdateTask(ctx, fx.Admin.ID, item.ID, &dto.UpdateTaskRequest{
		EmotionThreshold: &threshold,
		IsActive:         &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 0.8, updated.EmotionAlertAt)
	assert.Equal(t, "07:30", updated.ScheduleTime)

	other := testutil.SeedFamily(t, e.db, "F2", 0)
	_, err = svc.UpdateTask(ctx, other.Admin.ID, item.ID, &dto.UpdateTaskRequest{IsActive: &inactive})
	assert.ErrorIs(t, err, pkgerrors.TaskNotFound)
}

func TestListTasksMarksCheckedToday(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 2)
	member := fx.Members[0]
	morning := testutil.DailyTask(t, e.db, fx, "早安", "09:00")
	testutil.DailyTask(t, e.db, fx, "晚安", "21:00")
	testutil.DailyTask(t, e.db, fx, "只给成员2", "12:00", fx.Members[1].ID)

	svc := NewCheckinService(e.deps())
	_, err := svc.Submit(context.Background(), SubmitInput{TaskID: morning.ID, UserID: member.ID, Photo: testPhoto(t)})
	require.NoError(t, err)

	items, err := svc.ListTasks(context.Background(), member.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	checked := map[string]bool{}
	for _, item := range items {
		checked[item.TaskName] = item.CheckedToday
		if item.ID == morning.ID {
			require.NotNil(t, item.LastCheckin)
		}
	}
	assert.Equal(t, map[string]bool{"早安": true, "晚安": false}, checked)
}

func TestListRecordsFilters(t *testing.T) {
	e := newEnv(t)
	fx := testutil.SeedFamily(t, e.db, "F1", 1)
	task := testutil.DailyTask(t, e.db, fx, "早安", "09:00")
	svc := NewCheckinService(e.deps())
	_, err := svc.Submit(context.Background(), SubmitInput{TaskID: task.ID, UserID: fx.Members[0].ID, Photo: testPhoto(t)})
	require.NoError(t, err)

	items, page, err := svc.ListRecords(context.Background(), fx.Members[0].ID, dto.CheckinRecordQuery{Status: "on_time"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 1, page.Total)

	items, _, err = svc.ListRecords(context.Background(), fx.Members[0].ID, dto.CheckinRecordQuery{Status: "late"})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, _, err = svc.ListRecords(context.Background(), fx.Members[0].ID, dto.CheckinRecordQuery{From: "15/10/2026"})
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)
}
