package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
	"github.com/piyushrav1/realtime-whiteboard/internal/dto"
	"github.com/piyushrav1/realtime-whiteboard/internal/repository/mocks"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
)

// newTestHub wires a Hub to a mocked store with a long destruction delay so
// reaper timers never fire during a test.
func newTestHub(t *testing.T) (*Hub, *mocks.RoomStore) {
	t.Helper()
	mockStore := new(mocks.RoomStore)
	h := NewHub(service.NewRoomStateEngine(mockStore), time.Hour)
	t.Cleanup(h.Stop)
	return h, mockStore
}

// joinRoom registers a pump-less client, dispatches its join, and drains the
// resulting roomState frame.
func joinRoom(t *testing.T, h *Hub, mockStore *mocks.RoomStore, roomName string) *Client {
	t.Helper()
	mockStore.On("JoinOrCreate", mock.Anything, roomName).
		Return(&domain.Room{Name: roomName}, nil).Once()

	c := NewClient(h, nil)
	h.addClient(c)
	h.dispatch(c, mustEncode(t, dto.EventJoin, dto.JoinPayload{RoomName: roomName}))

	env := recvEvent(t, c)
	require.Equal(t, dto.EventRoomState, env.Type)
	drainFrames(t, c)
	return c
}

func mustEncode(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	frame, err := dto.Encode(eventType, payload)
	require.NoError(t, err)
	return frame
}

func recvEvent(t *testing.T, c *Client) dto.Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		env, err := dto.DecodeEnvelope(frame)
		require.NoError(t, err)
		return env
	default:
		require.Fail(t, "expected a frame, send buffer is empty")
		return dto.Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		env, _ := dto.DecodeEnvelope(frame)
		require.Failf(t, "unexpected frame", "got %s", env.Type)
	default:
	}
}

// drainFrames discards frames already queued for the given clients.
func drainFrames(t *testing.T, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		for len(c.send) > 0 {
			<-c.send
		}
	}
}

func TestDispatch_JoinSendsSnapshotAndAnnounces(t *testing.T) {
	h, mockStore := newTestHub(t)

	peer := joinRoom(t, h, mockStore, "alpha")

	// Snapshot with nil slices in the store document still serializes as
	// empty arrays for the new joiner.
	mockStore.On("JoinOrCreate", mock.Anything, "alpha").
		Return(&domain.Room{Name: "alpha"}, nil).Once()
	joiner := NewClient(h, nil)
	h.addClient(joiner)
	h.dispatch(joiner, mustEncode(t, dto.EventJoin, dto.JoinPayload{RoomName: "alpha"}))

	env := recvEvent(t, joiner)
	require.Equal(t, dto.EventRoomState, env.Type)
	var snapshot dto.RoomStatePayload
	require.NoError(t, dto.DecodePayload(env, &snapshot))
	assert.NotNil(t, snapshot.Objects)
	assert.Empty(t, snapshot.Objects)
	assert.NotNil(t, snapshot.ChatLog)

	// The peer hears about the new member; the joiner does not hear about
	// itself.
	env = recvEvent(t, peer)
	require.Equal(t, dto.EventUserJoined, env.Type)
	var announced dto.UserJoinedPayload
	require.NoError(t, dto.DecodePayload(env, &announced))
	assert.Equal(t, joiner.displayName, announced.DisplayName)
	assertNoFrame(t, joiner)

	assert.Equal(t, 2, h.MembersOf("alpha"))
	mockStore.AssertExpectations(t)
}

func TestDispatch_JoinDisarmsDestructionTimer(t *testing.T) {
	h, mockStore := newTestHub(t)

	h.reaper.RoomEmptied("alpha")
	require.True(t, h.reaper.Armed("alpha"))

	joinRoom(t, h, mockStore, "alpha")

	assert.False(t, h.reaper.Armed("alpha"))
}

func TestDispatch_RejoinResyncsWithoutReannouncing(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	mockStore.On("JoinOrCreate", mock.Anything, "alpha").
		Return(&domain.Room{Name: "alpha"}, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventJoin, dto.JoinPayload{RoomName: "alpha"}))

	// The rejoiner gets a fresh snapshot; the peer hears nothing new.
	env := recvEvent(t, sender)
	require.Equal(t, dto.EventRoomState, env.Type)
	assertNoFrame(t, peer)
	assert.Equal(t, 2, h.MembersOf("alpha"))
	mockStore.AssertExpectations(t)
}

func TestDispatch_SwitchingRoomsArmsVacatedRoom(t *testing.T) {
	h, mockStore := newTestHub(t)

	c := joinRoom(t, h, mockStore, "alpha")

	mockStore.On("JoinOrCreate", mock.Anything, "beta").
		Return(&domain.Room{Name: "beta"}, nil).Once()
	h.dispatch(c, mustEncode(t, dto.EventJoin, dto.JoinPayload{RoomName: "beta"}))

	assert.Equal(t, 0, h.MembersOf("alpha"))
	assert.Equal(t, 1, h.MembersOf("beta"))
	assert.True(t, h.reaper.Armed("alpha"))
	assert.False(t, h.reaper.Armed("beta"))
}

func TestDispatch_AppendPointsFansOutToPeersOnly(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	mockStore.On("AppendLinePoints", mock.Anything, "alpha", "L1", []float64{3, 4}).
		Return(true, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventAppendPoints, dto.AppendPointsPayload{
		RoomName:  "alpha",
		ObjectID:  "L1",
		NewPoints: []float64{3, 4},
	}))

	env := recvEvent(t, peer)
	require.Equal(t, dto.EventPointsAppended, env.Type)
	var delta dto.PointsAppendedPayload
	require.NoError(t, dto.DecodePayload(env, &delta))
	assert.Equal(t, "L1", delta.ObjectID)
	assert.Equal(t, []float64{3, 4}, delta.NewPoints)

	assertNoFrame(t, sender)
	mockStore.AssertExpectations(t)
}

func TestDispatch_FinalizeFansOutFinalState(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	final := domain.DrawingObject{ID: "L1", Type: domain.ObjectLine, Points: []float64{0, 0, 5, 5}}
	mockStore.On("ReplaceObject", mock.Anything, "alpha", "L1", final).
		Return(true, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventFinalizeObject, dto.FinalizeObjectPayload{
		RoomName:   "alpha",
		ObjectID:   "L1",
		FinalState: final,
	}))

	env := recvEvent(t, peer)
	require.Equal(t, dto.EventObjectFinalized, env.Type)
	var p dto.ObjectFinalizedPayload
	require.NoError(t, dto.DecodePayload(env, &p))
	assert.Equal(t, "L1", p.ObjectID)
	assert.Equal(t, []float64{0, 0, 5, 5}, p.FinalState.Points)
	assertNoFrame(t, sender)
	mockStore.AssertExpectations(t)
}

func TestDispatch_NoMatchStillFansOut(t *testing.T) {
	// The store matched nothing (object finalized or room reaped mid-flight)
	// but peers still get the delta; the sender sees no failure.
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	mockStore.On("AppendLinePoints", mock.Anything, "alpha", "gone", []float64{1, 2}).
		Return(false, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventAppendPoints, dto.AppendPointsPayload{
		RoomName:  "alpha",
		ObjectID:  "gone",
		NewPoints: []float64{1, 2},
	}))

	env := recvEvent(t, peer)
	assert.Equal(t, dto.EventPointsAppended, env.Type)
	assertNoFrame(t, sender)
}

func TestDispatch_StoreFailureRepliesToSenderOnly(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	obj := domain.DrawingObject{ID: "R1", Type: domain.ObjectRect}
	mockStore.On("InsertObject", mock.Anything, "alpha", obj).
		Return(false, errors.New("connection reset")).Once()

	h.dispatch(sender, mustEncode(t, dto.EventStartObject, dto.StartObjectPayload{
		RoomName: "alpha",
		Object:   obj,
	}))

	env := recvEvent(t, sender)
	require.Equal(t, dto.EventOperationFailed, env.Type)
	var failure dto.OperationFailedPayload
	require.NoError(t, dto.DecodePayload(env, &failure))
	assert.Equal(t, "database error", failure.Reason)

	assertNoFrame(t, peer)
}

func TestDispatch_MalformedFrameRejected(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	h.dispatch(sender, []byte(`{"type":`))

	env := recvEvent(t, sender)
	require.Equal(t, dto.EventOperationFailed, env.Type)
	var failure dto.OperationFailedPayload
	require.NoError(t, dto.DecodePayload(env, &failure))
	assert.Equal(t, "malformed message", failure.Reason)
	assertNoFrame(t, peer)
}

func TestDispatch_UnknownEventTypeRejected(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender)

	h.dispatch(sender, []byte(`{"type":"teleport","payload":{}}`))

	env := recvEvent(t, sender)
	assert.Equal(t, dto.EventOperationFailed, env.Type)
}

func TestDispatch_ClearIncludesSender(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	mockStore.On("ClearObjects", mock.Anything, "alpha").Return(true, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventClear, dto.RoomPayload{RoomName: "alpha"}))

	assert.Equal(t, dto.EventRoomCleared, recvEvent(t, sender).Type)
	assert.Equal(t, dto.EventRoomCleared, recvEvent(t, peer).Type)
}

func TestDispatch_ChatEchoesServerStampedMessage(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	drainFrames(t, sender, peer)

	mockStore.On("AppendChatMessage", mock.Anything, "alpha", mock.Anything).
		Return(true, nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventChatMessage, dto.ChatMessagePayload{
		RoomName: "alpha",
		Text:     "hello",
	}))

	for _, c := range []*Client{sender, peer} {
		env := recvEvent(t, c)
		require.Equal(t, dto.EventChatMessage, env.Type)
		var msg domain.ChatMessage
		require.NoError(t, dto.DecodePayload(env, &msg))
		assert.Equal(t, sender.id, msg.SenderID)
		assert.Equal(t, sender.displayName, msg.DisplayName)
		assert.Equal(t, "hello", msg.Text)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestDispatch_CloseRoomEvictsAndNotifiesEveryone(t *testing.T) {
	h, mockStore := newTestHub(t)
	sender := joinRoom(t, h, mockStore, "alpha")
	peer := joinRoom(t, h, mockStore, "alpha")
	bystander := joinRoom(t, h, mockStore, "beta")
	drainFrames(t, sender, peer, bystander)

	mockStore.On("Delete", mock.Anything, "alpha").Return(nil).Once()

	h.dispatch(sender, mustEncode(t, dto.EventCloseRoom, dto.RoomPayload{RoomName: "alpha"}))

	// roomDestroyed is a global notice.
	for _, c := range []*Client{sender, peer, bystander} {
		env := recvEvent(t, c)
		require.Equal(t, dto.EventRoomDestroyed, env.Type)
		var p dto.RoomPayload
		require.NoError(t, dto.DecodePayload(env, &p))
		assert.Equal(t, "alpha", p.RoomName)
	}

	assert.Equal(t, 0, h.MembersOf("alpha"))
	assert.Equal(t, 1, h.MembersOf("beta"))
	assert.False(t, h.reaper.Armed("alpha"))
	mockStore.AssertExpectations(t)
}

func TestDispatch_LastMemberLeavingArmsReaper(t *testing.T) {
	h, mockStore := newTestHub(t)
	c := joinRoom(t, h, mockStore, "alpha")

	h.removeClient(c)

	assert.Equal(t, 0, h.MembersOf("alpha"))
	assert.True(t, h.reaper.Armed("alpha"))
}
