package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	chatservice "pingme/internal/app/services/chat"
	domainchat "pingme/internal/domain/chat"
	"pingme/internal/infra/broker/kafka"
	"pingme/internal/infra/config"
	mongostore "pingme/internal/infra/db/mongo"
	ginserver "pingme/internal/infra/http/gin"
	"pingme/internal/infra/obs"
	redispresence "pingme/internal/infra/presence/redis"
	"pingme/internal/infra/storage/memory"
	"pingme/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.MessageWindow = 100
		cfg.ChatListLimit = 50
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	app, cleanup := buildApplication(ctx, cfg, logger)
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks: app.checks,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	checks   map[string]func(ctx context.Context) error
}

// buildApplication wires the chat backbone. Mongo, Redis and Kafka are
// each optional: an unset address selects the in-memory counterpart so the
// process runs standalone for local development.
func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func()) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	checks := make(map[string]func(ctx context.Context) error)
	var (
		gateway   chatservice.Gateway
		stream    chatservice.MessageStream
		chats     chatservice.ListStore
		directory chatservice.Directory
	)
	if cfg.MongoURI != "" {
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo connect failed", "error", err)
			os.Exit(1)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Error("mongo ping failed", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("mongo close failed", "error", err)
			}
		})
		store := mongostore.NewStore(client, logger)
		gateway, stream, chats = store, store, store
		directory = mongostore.NewDirectory(client)
		checks["mongodb"] = client.Ping
		logger.Info("chat storage: mongodb", "database", cfg.MongoDB)
	} else {
		store := memory.NewChatStore()
		dir := memory.NewDirectory()
		seedProfiles(dir, logger)
		gateway, stream, chats, directory = store, store, store, dir
		logger.Warn("MONGO_URI not set, using in-memory chat storage")
	}

	var presence chatservice.Presence
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close failed", "error", err)
			}
		})
		presence = redispresence.NewTracker(rdb, logger)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("typing presence: redis", "addr", cfg.RedisAddr)
	} else {
		presence = memory.NewPresence()
		logger.Warn("REDIS_ADDR not set, using in-memory typing presence")
	}

	var notifier chatservice.Notifier = kafka.NoopNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka producer close failed", "error", err)
			}
		})
		notifier = &kafka.Notifier{
			Producer: producer,
			Topic:    cfg.KafkaTopic,
			Source:   "pingme",
		}
		logger.Info("message notifications: kafka", "topic", cfg.KafkaTopic)
	} else {
		logger.Warn("KAFKA_BROKERS not set, message notifications disabled")
	}

	var uploader chatservice.Uploader = s3.NoopUploader{}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("s3 client init failed, media uploads disabled", "error", err)
		} else {
			uploader = client
			logger.Info("media storage: s3", "bucket", cfg.S3Bucket)
		}
	}

	service := &chatservice.Service{
		Gateway:  gateway,
		Presence: presence,
		Notifier: notifier,
		Uploader: uploader,
		Logger:   logger,
	}

	return application{
		handlers: ginserver.Handlers{
			Chat: &ginserver.ChatHandler{
				Service: service,
				Logger:  logger,
			},
			Stream: &ginserver.StreamHandler{
				Service:       service,
				Stream:        stream,
				Chats:         chats,
				Directory:     directory,
				Cache:         chatservice.NewListCache(),
				Presence:      presence,
				MessageWindow: cfg.MessageWindow,
				ChatListLimit: cfg.ChatListLimit,
				Logger:        logger,
			},
		},
		checks: checks,
	}, cleanup
}

// seedProfiles loads directory fixtures for in-memory mode so the chat list
// can resolve peers without a user database.
func seedProfiles(dir *memory.Directory, logger *slog.Logger) {
	path := getenv("PROFILE_FIXTURES", "")
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("profile fixtures load failed", "error", err, "path", path)
		return
	}
	var fixtures []profileFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		logger.Warn("profile fixtures decode failed", "error", err, "path", path)
		return
	}
	for _, fx := range fixtures {
		if fx.ID == "" {
			continue
		}
		dir.Seed(domainchat.Profile{
			ID:          fx.ID,
			Username:    fx.Username,
			DisplayName: fx.DisplayName,
			AvatarURL:   fx.AvatarURL,
		})
	}
	logger.Info("profile fixtures imported", "count", len(fixtures), "path", path)
}

type profileFixture struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
