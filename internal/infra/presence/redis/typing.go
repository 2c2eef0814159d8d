package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	appchat "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
)

const defaultPollInterval = 500 * time.Millisecond

// Tracker keeps typing signals in Redis keyed per conversation and user.
// The key TTL is the automatic clear: a client that dies mid-keystroke
// stops showing as typing without anyone deleting the record. Watchers
// still apply the client-side staleness filter on top.
type Tracker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewTracker(client *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		client:       client,
		ttl:          domainchat.TypingTTL,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

type typingRecord struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	At       int64  `json:"at"`
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

// SetTyping upserts the signal; the TTL schedules its automatic clear.
func (t *Tracker) SetTyping(ctx context.Context, conversationID string, signal domainchat.TypingSignal) error {
	payload, err := json.Marshal(typingRecord{
		UserID:   signal.UserID,
		Username: signal.Username,
		At:       signal.At.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode typing record: %w", err)
	}
	if err := t.client.Set(ctx, typingKey(conversationID, signal.UserID), payload, t.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set typing: %w", err)
	}
	return nil
}

// ClearTyping deletes the signal. DEL of an absent key is a no-op, so
// clearing something that already expired is success.
func (t *Tracker) ClearTyping(ctx context.Context, conversationID, userID string) error {
	if err := t.client.Del(ctx, typingKey(conversationID, userID)).Err(); err != nil {
		return fmt.Errorf("redis: clear typing: %w", err)
	}
	return nil
}

// WatchTyping polls the conversation's typing keys and delivers the raw
// signal set on every tick. Filtering (staleness, self) belongs to the
// subscriber.
func (t *Tracker) WatchTyping(ctx context.Context, conversationID string, fn func([]domainchat.TypingSignal)) appchat.CancelFunc {
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				signals, err := t.activeSignals(watchCtx, conversationID)
				if err != nil {
					if watchCtx.Err() != nil {
						return
					}
					if t.logger != nil {
						t.logger.Warn("typing poll failed", "conversation_id", conversationID, "error", err)
					}
					continue
				}
				fn(signals)
			}
		}
	}()
	return appchat.CancelFunc(cancel)
}

func (t *Tracker) activeSignals(ctx context.Context, conversationID string) ([]domainchat.TypingSignal, error) {
	pattern := fmt.Sprintf("typing:%s:*", conversationID)
	var keys []string
	iter := t.client.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan typing keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load typing records: %w", err)
	}
	signals := make([]domainchat.TypingSignal, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired between scan and mget
		}
		var rec typingRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		signals = append(signals, domainchat.TypingSignal{
			UserID:   rec.UserID,
			Username: rec.Username,
			At:       time.UnixMilli(rec.At).UTC(),
		})
	}
	return signals, nil
}
