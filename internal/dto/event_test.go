package dto_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyushrav1/realtime-whiteboard/internal/dto"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"appendPoints","payload":{"roomName":"demo","objectId":"L1","newPoints":[1,2]}}`)

	env, err := dto.DecodeEnvelope(raw)

	require.NoError(t, err)
	assert.Equal(t, dto.EventAppendPoints, env.Type)

	var p dto.AppendPointsPayload
	require.NoError(t, dto.DecodePayload(env, &p))
	assert.Equal(t, "demo", p.RoomName)
	assert.Equal(t, "L1", p.ObjectID)
	assert.Equal(t, []float64{1, 2}, p.NewPoints)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	_, err := dto.DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeEnvelope_MissingType(t *testing.T) {
	_, err := dto.DecodeEnvelope([]byte(`{"payload":{}}`))
	require.Error(t, err)
}

func TestDecodePayload_MissingPayload(t *testing.T) {
	env, err := dto.DecodeEnvelope([]byte(`{"type":"join"}`))
	require.NoError(t, err)

	var p dto.JoinPayload
	err = dto.DecodePayload(env, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join")
}

func TestDecodePayload_WrongShape(t *testing.T) {
	env, err := dto.DecodeEnvelope([]byte(`{"type":"appendPoints","payload":{"newPoints":"nope"}}`))
	require.NoError(t, err)

	var p dto.AppendPointsPayload
	require.Error(t, dto.DecodePayload(env, &p))
}

func TestEncode(t *testing.T) {
	frame, err := dto.Encode(dto.EventPointsAppended, dto.PointsAppendedPayload{
		ObjectID:  "L1",
		NewPoints: []float64{3, 4},
	})
	require.NoError(t, err)

	var env dto.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, dto.EventPointsAppended, env.Type)

	var p dto.PointsAppendedPayload
	require.NoError(t, dto.DecodePayload(env, &p))
	assert.Equal(t, "L1", p.ObjectID)
}

func TestEncode_NilPayload(t *testing.T) {
	frame, err := dto.Encode(dto.EventRoomCleared, nil)
	require.NoError(t, err)

	env, err := dto.DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, dto.EventRoomCleared, env.Type)
	assert.Empty(t, env.Payload)
}
