package domain

import "time"

// Room is the unit of collaboration: a named whiteboard document plus its
// chat log. The room name is the storage key. Object order is insertion
// order, which is also the paint order.
type Room struct {
	Name      string          `bson:"name" json:"name"`
	Objects   []DrawingObject `bson:"objects" json:"objects"`
	ChatLog   []ChatMessage   `bson:"chatLog" json:"chatLog"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// ChatMessage is one append-only chat log entry. Timestamp is assigned by the
// server at receipt, never by the client.
type ChatMessage struct {
	SenderID    string    `bson:"senderId" json:"senderId"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	Text        string    `bson:"text" json:"text"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}
