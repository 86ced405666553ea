package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// ErrBufferClaimed is returned by Drain when the buffer was already claimed
// by a different flush token.
var ErrBufferClaimed = errors.New("buffer claimed by another flush")

// BufferRepository persists in-flight message fragments, one document per
// (user, conversation, interview step) key. Append is a single atomic $push
// upsert so concurrent arrivals to the same key are serialized by the server
// and never lost or reordered.
type BufferRepository interface {
	Append(ctx context.Context, userID, conversationID string, step int, msg models.BufferedMessage) error
	Get(ctx context.Context, userID, conversationID string, step int) (*models.MessageBuffer, error)
	Clear(ctx context.Context, userID, conversationID string, step int) error
	Exists(ctx context.Context, userID, conversationID string, step int) (bool, error)
	Drain(ctx context.Context, userID, conversationID string, step int, flushID string) ([]models.BufferedMessage, error)
}

type bufferRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewBufferRepo(db *mongo.Database, ttl time.Duration) BufferRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferRepo{col: db.Collection("message_buffers"), ttl: ttl}
}

func key(userID, conversationID string, step int) bson.M {
	return bson.M{
		"user_id":         userID,
		"conversation_id": conversationID,
		"interview_step":  step,
	}
}

func (r *bufferRepo) Append(ctx context.Context, userID, conversationID string, step int, msg models.BufferedMessage) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		key(userID, conversationID, step),
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set": bson.M{
				"last_updated_at": now,
				"expires_at":      now.Add(r.ttl),
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *bufferRepo) Get(ctx context.Context, userID, conversationID string, step int) (*models.MessageBuffer, error) {
	var buf models.MessageBuffer
	err := r.col.FindOne(ctx, key(userID, conversationID, step)).Decode(&buf)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &buf, nil
}

func (r *bufferRepo) Clear(ctx context.Context, userID, conversationID string, step int) error {
	// deleting a nonexistent buffer is a no-op
	_, err := r.col.DeleteOne(ctx, key(userID, conversationID, step))
	return err
}

func (r *bufferRepo) Exists(ctx context.Context, userID, conversationID string, step int) (bool, error) {
	n, err := r.col.CountDocuments(ctx, key(userID, conversationID, step), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Drain claims the buffer with flushID, returns its messages, and removes it.
// A retry with the same flushID matches the claimed document again, so the
// operation is idempotent between the claim and the delete.
func (r *bufferRepo) Drain(ctx context.Context, userID, conversationID string, step int, flushID string) ([]models.BufferedMessage, error) {
	filter := key(userID, conversationID, step)
	filter["$or"] = bson.A{
		bson.M{"flush_id": bson.M{"$exists": false}},
		bson.M{"flush_id": flushID},
	}

	var buf models.MessageBuffer
	err := r.col.FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": bson.M{"flush_id": flushID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&buf)
	if errors.Is(err, mongo.ErrNoDocuments) {
		exists, eerr := r.Exists(ctx, userID, conversationID, step)
		if eerr != nil {
			return nil, eerr
		}
		if exists {
			return nil, ErrBufferClaimed
		}
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	del := key(userID, conversationID, step)
	del["flush_id"] = flushID
	if _, err := r.col.DeleteOne(ctx, del); err != nil {
		return nil, err
	}
	return buf.Messages, nil
}
