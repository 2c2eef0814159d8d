package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appchat "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

// Store persists conversations and their message logs. The summary in the
// chats collection and the ordered log in the messages collection are kept
// consistent by committing every send inside one session transaction.
type Store struct {
	db       *mongo.Database
	messages *mongo.Collection
	chats    *mongo.Collection
	logger   *slog.Logger
}

func NewStore(client *Client, logger *slog.Logger) *Store {
	return &Store{
		db:       client.DB,
		messages: client.DB.Collection("messages"),
		chats:    client.DB.Collection("chats"),
		logger:   logger,
	}
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	ReceiverID     string `bson:"receiver_id"`
	Text           string `bson:"text,omitempty"`
	MediaURL       string `bson:"media_url,omitempty"`
	Type           string `bson:"type"`
	Status         string `bson:"status"`
	Seen           bool   `bson:"seen"`
	CreatedAt      int64  `bson:"created_at"`
	ClientID       string `bson:"client_id,omitempty"`
}

type summaryDocument struct {
	Text     string `bson:"text"`
	SenderID string `bson:"sender_id"`
	At       int64  `bson:"at"`
	Seen     bool   `bson:"seen"`
}

type chatDocument struct {
	ID           string          `bson:"_id"`
	Participants []string        `bson:"participants"`
	CreatedAt    int64           `bson:"created_at"`
	LastMessage  summaryDocument `bson:"last_message"`
}

// SendMessage appends the message and upserts the conversation summary in a
// single transaction. A crash between the two writes can never leave the
// chat list pointing at a last message the log does not have.
func (s *Store) SendMessage(ctx context.Context, draft domainchat.Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}
	draft = draft.Normalized()

	session, err := s.db.Client().StartSession()
	if err != nil {
		return "", fmt.Errorf("mongo: start session: %w", err)
	}
	defer session.EndSession(ctx)

	id := uuid.NewString()
	now := time.Now().UTC()
	doc := messageDocument{
		ID:             id,
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		ReceiverID:     draft.ReceiverID,
		Text:           draft.Text,
		MediaURL:       draft.MediaURL,
		Type:           string(draft.Type),
		Status:         string(domainchat.StatusSent),
		Seen:           false,
		CreatedAt:      now.UnixMilli(),
		ClientID:       draft.ClientID,
	}
	participants := []string{draft.SenderID, draft.ReceiverID}
	sort.Strings(participants)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.messages.InsertOne(sc, doc); err != nil {
			return nil, fmt.Errorf("append message: %w", err)
		}
		update := bson.M{
			"$set": bson.M{
				"last_message": summaryDocument{
					Text:     draft.Text,
					SenderID: draft.SenderID,
					At:       now.UnixMilli(),
					Seen:     false,
				},
			},
			"$setOnInsert": bson.M{
				"participants": participants,
				"created_at":   now.UnixMilli(),
			},
		}
		opts := options.Update().SetUpsert(true)
		if _, err := s.chats.UpdateOne(sc, bson.M{"_id": draft.ConversationID}, update, opts); err != nil {
			return nil, fmt.Errorf("update summary: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("mongo: send message: %w", err)
	}
	return id, nil
}

// MarkMessagesAsSeen flips every unseen message addressed to the viewer and,
// when the last message came from the other side, the summary's seen flag.
// Both updates are conditioned on current state, so reruns are no-ops.
func (s *Store) MarkMessagesAsSeen(ctx context.Context, conversationID, viewerID string) error {
	filter := bson.M{
		"conversation_id": conversationID,
		"receiver_id":     viewerID,
		"seen":            false,
	}
	update := bson.M{"$set": bson.M{
		"seen":   true,
		"status": string(domainchat.StatusSeen),
	}}
	if _, err := s.messages.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("mongo: mark messages seen: %w", err)
	}

	summaryFilter := bson.M{
		"_id":                    conversationID,
		"last_message.sender_id": bson.M{"$ne": viewerID},
	}
	summaryUpdate := bson.M{"$set": bson.M{"last_message.seen": true}}
	if _, err := s.chats.UpdateOne(ctx, summaryFilter, summaryUpdate); err != nil {
		return fmt.Errorf("mongo: mark summary seen: %w", err)
	}
	return nil
}

// SubscribeMessages delivers the ordered window of the conversation now and
// again after every change stream event. A broken subscription degrades to
// an empty delivery instead of an error.
func (s *Store) SubscribeMessages(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) appchat.CancelFunc {
	watchCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{
		{Key: "fullDocument.conversation_id", Value: conversationID},
	}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.messages.Watch(watchCtx, pipeline, opts)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("message stream watch failed", "conversation_id", conversationID, "error", err)
		}
		fn(nil)
		return appchat.CancelFunc(cancel)
	}

	s.deliverWindow(watchCtx, conversationID, limit, fn)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			s.deliverWindow(watchCtx, conversationID, limit, fn)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			if s.logger != nil {
				s.logger.Error("message stream broken", "conversation_id", conversationID, "error", err)
			}
			fn(nil)
		}
	}()
	return appchat.CancelFunc(cancel)
}

func (s *Store) deliverWindow(ctx context.Context, conversationID string, limit int64, fn func([]domainchat.Message)) {
	window, err := s.messageWindow(ctx, conversationID, limit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if s.logger != nil {
			s.logger.Error("message window query failed", "conversation_id", conversationID, "error", err)
		}
		fn(nil)
		return
	}
	fn(window)
}

// messageWindow returns the most recent messages in ascending creation
// order: newest-first query capped at limit, then reversed for display.
func (s *Store) messageWindow(ctx context.Context, conversationID string, limit int64) ([]domainchat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainchat.Message, len(docs))
	for i, doc := range docs {
		out[len(docs)-1-i] = doc.toMessage()
	}
	return out, nil
}

func (d messageDocument) toMessage() domainchat.Message {
	return domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Text:           d.Text,
		MediaURL:       d.MediaURL,
		Type:           domainchat.MessageType(d.Type),
		Status:         domainchat.MessageStatus(d.Status),
		Seen:           d.Seen,
		CreatedAt:      time.UnixMilli(d.CreatedAt).UTC(),
		ClientID:       d.ClientID,
	}
}

func (d chatDocument) toConversation() domainchat.Conversation {
	return domainchat.Conversation{
		ID:           d.ID,
		Participants: append([]string(nil), d.Participants...),
		CreatedAt:    time.UnixMilli(d.CreatedAt).UTC(),
		LastMessage: domainchat.Summary{
			Text:     d.LastMessage.Text,
			SenderID: d.LastMessage.SenderID,
			SentAt:   time.UnixMilli(d.LastMessage.At).UTC(),
			Seen:     d.LastMessage.Seen,
		},
	}
}
