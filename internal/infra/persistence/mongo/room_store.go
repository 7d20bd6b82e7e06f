package mongopersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
	"github.com/piyushrav1/realtime-whiteboard/internal/repository"
)

// MongoRoomStore is the RoomStore implementation backed by a MongoDB
// collection, one document per room. All object-level mutations use positional
// array operators so that concurrent edits to different objects in the same
// room never clobber each other.
type MongoRoomStore struct {
	rooms *mongo.Collection
}

// NewMongoRoomStore creates the store and ensures the unique index on the
// room name.
func NewMongoRoomStore(ctx context.Context, db *mongo.Database) (*MongoRoomStore, error) {
	if db == nil {
		panic("mongo database cannot be nil for MongoRoomStore")
	}
	rooms := db.Collection("rooms")
	_, err := rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: create room name index: %w", err)
	}
	return &MongoRoomStore{rooms: rooms}, nil
}

func (s *MongoRoomStore) JoinOrCreate(ctx context.Context, name string) (*domain.Room, error) {
	now := time.Now().UTC()
	res := s.rooms.FindOneAndUpdate(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": bson.M{
			"name":      name,
			"objects":   bson.A{},
			"chatLog":   bson.A{},
			"createdAt": now,
			"updatedAt": now,
		}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	var room domain.Room
	if err := res.Decode(&room); err != nil {
		return nil, fmt.Errorf("mongo: join-or-create room %q: %w", name, err)
	}
	return &room, nil
}

func (s *MongoRoomStore) Find(ctx context.Context, name string) (*domain.Room, error) {
	var room domain.Room
	err := s.rooms.FindOne(ctx, bson.M{"name": name}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("mongo: find room %q: %w", name, err)
	}
	return &room, nil
}

func (s *MongoRoomStore) InsertObject(ctx context.Context, name string, obj domain.DrawingObject) (bool, error) {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{
			"$push": bson.M{"objects": obj},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: insert object %q into room %q: %w", obj.ID, name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) AppendLinePoints(ctx context.Context, name, objectID string, points []float64) (bool, error) {
	// The type filter is part of the match: point appends are only defined for
	// lines, and an append racing a finalize that changed nothing but fields
	// still targets the same element.
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{
			"name":         name,
			"objects.id":   objectID,
			"objects.type": domain.ObjectLine,
		},
		bson.M{
			"$push": bson.M{"objects.$.points": bson.M{"$each": points}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: append points to object %q in room %q: %w", objectID, name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) ReplaceObject(ctx context.Context, name, objectID string, final domain.DrawingObject) (bool, error) {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"name": name, "objects.id": objectID},
		bson.M{"$set": bson.M{
			"objects.$": final,
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: replace object %q in room %q: %w", objectID, name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) MergeObjectAttributes(ctx context.Context, name, objectID string, patch map[string]any) (bool, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for field, value := range patch {
		set["objects.$."+field] = value
	}
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"name": name, "objects.id": objectID},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: merge attributes into object %q in room %q: %w", objectID, name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) ClearObjects(ctx context.Context, name string) (bool, error) {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{
			"objects":   bson.A{},
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: clear objects in room %q: %w", name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) AppendChatMessage(ctx context.Context, name string, msg domain.ChatMessage) (bool, error) {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{
			"$push": bson.M{"chatLog": msg},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: append chat message to room %q: %w", name, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoRoomStore) Delete(ctx context.Context, name string) error {
	_, err := s.rooms.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("mongo: delete room %q: %w", name, err)
	}
	return nil
}

func (s *MongoRoomStore) ListStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	cursor, err := s.rooms.Find(ctx,
		bson.M{"updatedAt": bson.M{"$lt": olderThan}},
		options.Find().SetProjection(bson.M{"name": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: list stale rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode stale room: %w", err)
		}
		names = append(names, doc.Name)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterate stale rooms: %w", err)
	}
	return names, nil
}
