package repository

import (
	"context"
	"fmt"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	chatMessagesCollection = "chat_messages"
	countersCollection     = "counters"
	chatMessageSequence    = "chat_message_id"
)

type mongoChatRepository struct {
	db  *mongo.Database
	log *observability.StoreLogger
}

// NewMongoChatRepository stores the chat log in MongoDB. Message ids come
// from a counters document so they stay numeric like the SQL store.
func NewMongoChatRepository(ctx context.Context, db *mongo.Database) (ChatRepository, error) {
	_, err := db.Collection(chatMessagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "id", Value: 1}}},
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("create chat indexes: %w", err)
	}
	return &mongoChatRepository{db: db, log: observability.NewStoreLogger(chatMessagesCollection)}, nil
}

func (r *mongoChatRepository) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": chatMessageSequence},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return uint(counter.Seq), nil
}

func (r *mongoChatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	ctx, span := observability.StartStoreSpan(ctx, chatMessagesCollection, "insert")
	defer span.End()

	id, err := r.nextID(ctx)
	if err != nil {
		r.log.Failed(ctx, "next_id", err)
		return models.NewInternalError(err)
	}
	msg.ID = id
	if _, err := r.db.Collection(chatMessagesCollection).InsertOne(ctx, msg); err != nil {
		r.log.Failed(ctx, "create", err)
		observability.RecordErrorInContext(ctx, err)
		return models.NewInternalError(err)
	}
	r.log.Done(ctx, "create", "chat_id", msg.ChatID, "message_id", msg.ID)
	return nil
}

func (r *mongoChatRepository) History(ctx context.Context, chatID string, limit, offset int) ([]*models.ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.db.Collection(chatMessagesCollection).Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer cursor.Close(ctx)

	msgs := make([]*models.ChatMessage, 0, limit)
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}
