// Package bootstrap wires the stores and background services a vibefeed
// process needs.
package bootstrap

import (
	"context"
	"fmt"

	"vibefeed/internal/cache"
	"vibefeed/internal/config"
	"vibefeed/internal/database"
	"vibefeed/internal/middleware"
	"vibefeed/internal/repository"
	"vibefeed/internal/server"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// Runtime holds the connections opened for a process.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Mongo *mongo.Client
	// ChatRepo is set when chat history lives outside the SQL database.
	ChatRepo repository.ChatRepository
}

// InitRuntime connects to the database, Redis and, when CHAT_STORE=mongo,
// MongoDB. Redis is optional: an unreachable server leaves Redis nil and the
// process runs single-instance.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{DB: db}

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, running without cross-process fan-out", "error", err)
	} else {
		rt.Redis = rdb
	}

	if cfg.ChatStore == config.ChatStoreMongo {
		client, err := database.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.Mongo = client
		repo, err := repository.NewMongoChatRepository(ctx, client.Database(cfg.MongoDB))
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("mongo chat store: %w", err)
		}
		rt.ChatRepo = repo
		middleware.Logger.Info("Chat history stored in MongoDB", "database", cfg.MongoDB)
	}

	return rt, nil
}

// ServerOptions returns the server options implied by the runtime.
func (rt *Runtime) ServerOptions() []server.Option {
	var opts []server.Option
	if rt.ChatRepo != nil {
		opts = append(opts, server.WithChatRepository(rt.ChatRepo))
	}
	return opts
}

// Close releases every connection the runtime opened.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Mongo != nil {
		if err := rt.Mongo.Disconnect(ctx); err != nil {
			middleware.Logger.Error("Mongo disconnect failed", "error", err)
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			middleware.Logger.Error("Redis close failed", "error", err)
		}
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
