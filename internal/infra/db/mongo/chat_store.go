package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appchat "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// SubscribeChats delivers the user's conversations, last-message timestamp
// descending and capped at limit, now and after every change touching one
// of their conversations. Errors degrade to an empty delivery, same as the
// message stream.
func (s *Store) SubscribeChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) appchat.CancelFunc {
	watchCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{
		{Key: "fullDocument.participants", Value: userID},
	}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.chats.Watch(watchCtx, pipeline, opts)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("chat list watch failed", "user_id", userID, "error", err)
		}
		fn(nil)
		return appchat.CancelFunc(cancel)
	}

	s.deliverChats(watchCtx, userID, limit, fn)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			s.deliverChats(watchCtx, userID, limit, fn)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			if s.logger != nil {
				s.logger.Error("chat list stream broken", "user_id", userID, "error", err)
			}
			fn(nil)
		}
	}()
	return appchat.CancelFunc(cancel)
}

func (s *Store) deliverChats(ctx context.Context, userID string, limit int64, fn func([]domainchat.Conversation)) {
	chats, err := s.userChats(ctx, userID, limit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if s.logger != nil {
			s.logger.Error("chat list query failed", "user_id", userID, "error", err)
		}
		fn(nil)
		return
	}
	fn(chats)
}

func (s *Store) userChats(ctx context.Context, userID string, limit int64) ([]domainchat.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message.at", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.chats.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainchat.Conversation, len(docs))
	for i, doc := range docs {
		out[i] = doc.toConversation()
	}
	return out, nil
}
