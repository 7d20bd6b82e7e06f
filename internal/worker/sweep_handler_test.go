package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piyushrav1/realtime-whiteboard/internal/hub"
	"github.com/piyushrav1/realtime-whiteboard/internal/repository/mocks"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
	"github.com/piyushrav1/realtime-whiteboard/internal/tasks"
	"github.com/piyushrav1/realtime-whiteboard/internal/worker"
)

func newSweepFixture(t *testing.T) (*worker.SweepHandler, *mocks.RoomStore, *hub.Hub) {
	t.Helper()
	mockStore := new(mocks.RoomStore)
	engine := service.NewRoomStateEngine(mockStore)
	h := hub.NewHub(engine, time.Hour)
	t.Cleanup(h.Stop)
	return worker.NewSweepHandler(mockStore, engine, h), mockStore, h
}

func sweepTask(t *testing.T, maxAgeSeconds int64) *asynq.Task {
	t.Helper()
	payload, err := tasks.NewRoomSweepTask(maxAgeSeconds)
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeRoomSweep, payload)
}

func TestSweepHandler_DestroysAbandonedRooms(t *testing.T) {
	handler, mockStore, _ := newSweepFixture(t)

	mockStore.On("ListStale", mock.Anything, mock.Anything).
		Return([]string{"old-1", "old-2"}, nil).Once()
	mockStore.On("Delete", mock.Anything, "old-1").Return(nil).Once()
	mockStore.On("Delete", mock.Anything, "old-2").Return(nil).Once()

	err := handler.ProcessTask(context.Background(), sweepTask(t, 3600))

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestSweepHandler_SkipsRoomsWithPendingTimer(t *testing.T) {
	// A pending destruction timer means the in-process grace period owns the
	// room; the sweep must not preempt it.
	handler, mockStore, h := newSweepFixture(t)
	h.Reaper().RoomEmptied("pending")

	mockStore.On("ListStale", mock.Anything, mock.Anything).
		Return([]string{"pending", "abandoned"}, nil).Once()
	mockStore.On("Delete", mock.Anything, "abandoned").Return(nil).Once()

	err := handler.ProcessTask(context.Background(), sweepTask(t, 3600))

	require.NoError(t, err)
	mockStore.AssertNotCalled(t, "Delete", mock.Anything, "pending")
	mockStore.AssertExpectations(t)
}

func TestSweepHandler_ContinuesPastDestroyFailure(t *testing.T) {
	handler, mockStore, _ := newSweepFixture(t)

	mockStore.On("ListStale", mock.Anything, mock.Anything).
		Return([]string{"broken", "fine"}, nil).Once()
	mockStore.On("Delete", mock.Anything, "broken").Return(errors.New("timeout")).Once()
	mockStore.On("Delete", mock.Anything, "fine").Return(nil).Once()

	err := handler.ProcessTask(context.Background(), sweepTask(t, 3600))

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestSweepHandler_NoStaleRooms(t *testing.T) {
	handler, mockStore, _ := newSweepFixture(t)

	mockStore.On("ListStale", mock.Anything, mock.Anything).Return([]string{}, nil).Once()

	require.NoError(t, handler.ProcessTask(context.Background(), sweepTask(t, 3600)))
	mockStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSweepHandler_ListFailurePropagatesForRetry(t *testing.T) {
	handler, mockStore, _ := newSweepFixture(t)

	mockStore.On("ListStale", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()

	assert.Error(t, handler.ProcessTask(context.Background(), sweepTask(t, 3600)))
}

func TestSweepHandler_RejectsBadPayload(t *testing.T) {
	handler, mockStore, _ := newSweepFixture(t)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRoomSweep, []byte(`{`)))
	assert.Error(t, err)

	err = handler.ProcessTask(context.Background(), sweepTask(t, 0))
	assert.Error(t, err)

	mockStore.AssertNotCalled(t, "ListStale", mock.Anything, mock.Anything)
}
