package sms

import (
	"context"
	"encoding/json"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierBuildsTemplateParam(t *testing.T) {
	mock := NewMockClient()
	n := NewNotifier(mock, "FamilyWell", "SMS_001")

	require.NoError(t, n.Notify(context.Background(), "13800138000", "打卡提醒: 早安打卡", "请及时完成打卡"))

	calls := mock.Sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "13800138000", calls[0].Phone)
	assert.Equal(t, "FamilyWell", calls[0].SignName)
	assert.Equal(t, "SMS_001", calls[0].TemplateCode)

	var param map[string]string
	require.NoError(t, json.Unmarshal([]byte(calls[0].TemplateParam), &param))
	assert.Equal(t, "打卡提醒: 早安打卡", param["subject"])
}

func TestNotifierTruncatesLongContent(t *testing.T) {
	mock := NewMockClient()
	n := NewNotifier(mock, "FamilyWell", "SMS_001")

	long := ""
	for i := 0; i < 50; i++ {
		long += "长"
	}
	require.NoError(t, n.Notify(context.Background(), "13800138000", "s", long))

	var param map[string]string
	require.NoError(t, json.Unmarshal([]byte(mock.Sent()[0].TemplateParam), &param))
	assert.Equal(t, maxParamRunes, utf8.RuneCountInString(param["content"]))
}

func TestNotifierPropagatesFailure(t *testing.T) {
	mock := NewMockClient()
	mock.FailNext = true
	n := NewNotifier(mock, "FamilyWell", "SMS_001")

	assert.Error(t, n.Notify(context.Background(), "13800138000", "s", "c"))
	assert.NoError(t, n.Notify(context.Background(), "13800138000", "s", "c"))
}

func TestNotifierWithoutClient(t *testing.T) {
	n := NewNotifier(nil, "FamilyWell", "SMS_001")
	assert.Error(t, n.Notify(context.Background(), "13800138000", "s", "c"))
}
