package dto

import (
	"encoding/json"
	"fmt"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
)

// Inbound event types.
const (
	EventJoin             = "join"
	EventStartObject      = "startObject"
	EventAppendPoints     = "appendPoints"
	EventFinalizeObject   = "finalizeObject"
	EventUpdateAttributes = "updateAttributes"
	EventClear            = "clear"
	EventCloseRoom        = "closeRoom"
	EventChatMessage      = "chatMessage"
)

// Outbound event types.
const (
	EventRoomState         = "roomState"
	EventObjectStarted     = "objectStarted"
	EventPointsAppended    = "pointsAppended"
	EventObjectFinalized   = "objectFinalized"
	EventAttributesUpdated = "attributesUpdated"
	EventRoomCleared       = "roomCleared"
	EventRoomDestroyed     = "roomDestroyed"
	EventUserJoined        = "userJoined"
	EventOperationFailed   = "operationFailed"
)

// Envelope is the wire frame for every event in both directions: a type tag
// plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses a raw inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("dto: malformed envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("dto: envelope missing type")
	}
	return env, nil
}

// DecodePayload parses an envelope payload into the given payload struct.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("dto: %s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("dto: %s: malformed payload: %w", env.Type, err)
	}
	return nil
}

// Inbound payloads.

type JoinPayload struct {
	RoomName string `json:"roomName"`
}

type StartObjectPayload struct {
	RoomName string               `json:"roomName"`
	Object   domain.DrawingObject `json:"object"`
}

type AppendPointsPayload struct {
	RoomName  string    `json:"roomName"`
	ObjectID  string    `json:"objectId"`
	NewPoints []float64 `json:"newPoints"`
}

type FinalizeObjectPayload struct {
	RoomName   string               `json:"roomName"`
	ObjectID   string               `json:"objectId"`
	FinalState domain.DrawingObject `json:"finalState"`
}

type UpdateAttributesPayload struct {
	RoomName string         `json:"roomName"`
	ObjectID string         `json:"objectId"`
	Patch    map[string]any `json:"patch"`
}

type RoomPayload struct {
	RoomName string `json:"roomName"`
}

type ChatMessagePayload struct {
	RoomName string `json:"roomName"`
	Text     string `json:"text"`
}

// Outbound payloads.

type RoomStatePayload struct {
	Objects []domain.DrawingObject `json:"objects"`
	ChatLog []domain.ChatMessage   `json:"chatLog"`
}

type PointsAppendedPayload struct {
	ObjectID  string    `json:"objectId"`
	NewPoints []float64 `json:"newPoints"`
}

type ObjectFinalizedPayload struct {
	ObjectID   string               `json:"objectId"`
	FinalState domain.DrawingObject `json:"finalState"`
}

type AttributesUpdatedPayload struct {
	ObjectID string         `json:"objectId"`
	Patch    map[string]any `json:"patch"`
}

type UserJoinedPayload struct {
	DisplayName string `json:"displayName"`
}

type OperationFailedPayload struct {
	Reason string `json:"reason"`
}

// Encode builds an outbound frame. A nil payload yields a bare type tag
// (roomCleared has no body).
func Encode(eventType string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("dto: encode %s payload: %w", eventType, err)
		}
		env.Payload = body
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("dto: encode %s envelope: %w", eventType, err)
	}
	return frame, nil
}
