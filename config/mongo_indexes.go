package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	db := MongoDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buffers := db.Collection("message_buffers")
	_, err := buffers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// one buffer document per (user, conversation, step) key; the
		// unique index is what makes the $push upsert race-free
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "conversation_id", Value: 1},
				{Key: "interview_step", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_buffer_key").
				SetUnique(true),
		},
		// abandoned buffers are garbage-collected by Mongo
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "last_updated_at", Value: -1}},
			Options: options.Index().SetName("by_conversation_updated"),
		},
	})
	return err
}
