package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/model"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/storage/mq"
)

type fakeDispatcher struct {
	ids []int64
	err error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id int64) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeMarker struct {
	marked   map[string]bool
	err      error
	unmarked []string
	done     []string
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{marked: make(map[string]bool)}
}

func (m *fakeMarker) TryMark(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.marked[id] {
		return false, nil
	}
	m.marked[id] = true
	return true, nil
}

func (m *fakeMarker) Unmark(_ context.Context, id string) error {
	delete(m.marked, id)
	m.unmarked = append(m.unmarked, id)
	return nil
}

func (m *fakeMarker) Done(_ context.Context, id string) error {
	m.done = append(m.done, id)
	return nil
}

func body(t *testing.T, id int64, messageID string) []byte {
	t.Helper()
	b, err := json.Marshal(model.NotificationDispatchMessage{MessageID: messageID, NotificationID: id, Source: "test"})
	require.NoError(t, err)
	return b
}

func TestDispatchHandlerDeliversOnce(t *testing.T) {
	d := &fakeDispatcher{}
	marker := newFakeMarker()
	h := NewDispatchHandler(d, marker)

	require.NoError(t, h(context.Background(), body(t, 42, "m1")))
	assert.Equal(t, []int64{42}, d.ids)
	assert.Equal(t, []string{"m1"}, marker.done)

	err := h(context.Background(), body(t, 42, "m1"))
	var skip *pkgerrors.SkipMessageError
	assert.ErrorAs(t, err, &skip)
	assert.Len(t, d.ids, 1)
}

func TestDispatchHandlerRejectsMalformedMessages(t *testing.T) {
	h := NewDispatchHandler(&fakeDispatcher{}, newFakeMarker())

	var poison *pkgerrors.PoisonMessageError
	assert.ErrorAs(t, h(context.Background(), []byte("{not json")), &poison)
	assert.ErrorAs(t, h(context.Background(), body(t, 0, "m1")), &poison)
}

func TestDispatchHandlerOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantSkip  bool
		wantRetry bool
	}{
		{name: "missing notification", err: pkgerrors.NotificationNotFound, wantSkip: true},
		{name: "already delivered", err: &pkgerrors.SkipMessageError{Reason: "notification 1 is sent"}, wantSkip: true},
		{name: "database failure", err: errors.New("connection reset"), wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := newFakeMarker()
			h := NewDispatchHandler(&fakeDispatcher{err: tt.err}, marker)

			err := h(context.Background(), body(t, 1, "m1"))
			require.Error(t, err)

			var skip *pkgerrors.SkipMessageError
			assert.Equal(t, tt.wantSkip, errors.As(err, &skip))
			if tt.wantRetry {
				assert.Equal(t, []string{"m1"}, marker.unmarked)
				assert.False(t, marker.marked["m1"])
			} else {
				assert.Empty(t, marker.unmarked)
			}
			assert.Empty(t, marker.done)
		})
	}
}

func TestDispatchHandlerProceedsWithoutRedis(t *testing.T) {
	d := &fakeDispatcher{}
	marker := newFakeMarker()
	marker.err = errors.New("redis client is not initialized")

	require.NoError(t, NewDispatchHandler(d, marker)(context.Background(), body(t, 7, "m7")))
	assert.Equal(t, []int64{7}, d.ids)
}

func TestPublisherRoutesToDispatchQueue(t *testing.T) {
	var (
		gotExchange, gotKey, gotID string
		gotBody                    interface{}
	)
	p := &Publisher{
		publish: func(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
			gotExchange, gotKey, gotID, gotBody = exchange, routingKey, messageID, body
			return nil
		},
		now: func() time.Time { return time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, p.PublishDispatch(context.Background(), 42, "checkin_alert"))
	assert.Equal(t, mq.NotificationExchange, gotExchange)
	assert.Equal(t, mq.NotificationDispatchRK, gotKey)
	assert.NotEmpty(t, gotID)

	msg, ok := gotBody.(model.NotificationDispatchMessage)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.NotificationID)
	assert.Equal(t, "checkin_alert", msg.Source)
	assert.Equal(t, gotID, msg.MessageID)
}

func TestPublisherReturnsBrokerError(t *testing.T) {
	p := &Publisher{
		publish: func(context.Context, string, string, string, interface{}) error {
			return errors.New("RabbitMQ connection is nil or closed")
		},
		now: time.Now,
	}
	assert.Error(t, p.PublishDispatch(context.Background(), 1, "reminder"))
}
