package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
)

// RoomStore is a testify mock of repository.RoomStore.
type RoomStore struct {
	mock.Mock
}

func (m *RoomStore) JoinOrCreate(ctx context.Context, name string) (*domain.Room, error) {
	args := m.Called(ctx, name)
	if room := args.Get(0); room != nil {
		return room.(*domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomStore) Find(ctx context.Context, name string) (*domain.Room, error) {
	args := m.Called(ctx, name)
	if room := args.Get(0); room != nil {
		return room.(*domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomStore) InsertObject(ctx context.Context, name string, obj domain.DrawingObject) (bool, error) {
	args := m.Called(ctx, name, obj)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) AppendLinePoints(ctx context.Context, name, objectID string, points []float64) (bool, error) {
	args := m.Called(ctx, name, objectID, points)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) ReplaceObject(ctx context.Context, name, objectID string, final domain.DrawingObject) (bool, error) {
	args := m.Called(ctx, name, objectID, final)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) MergeObjectAttributes(ctx context.Context, name, objectID string, patch map[string]any) (bool, error) {
	args := m.Called(ctx, name, objectID, patch)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) ClearObjects(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) AppendChatMessage(ctx context.Context, name string, msg domain.ChatMessage) (bool, error) {
	args := m.Called(ctx, name, msg)
	return args.Bool(0), args.Error(1)
}

func (m *RoomStore) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *RoomStore) ListStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	args := m.Called(ctx, olderThan)
	if names := args.Get(0); names != nil {
		return names.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}
