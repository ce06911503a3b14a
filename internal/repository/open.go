package repository

import (
	"context"
	"fmt"

	"pai-chat-client/internal/config"
	"pai-chat-client/pkg/database"
)

// Open 根据存储配置创建对应后端的仓库。
func Open(ctx context.Context, cfg config.StorageConfig) (ConversationRepository, error) {
	switch cfg.Driver {
	case "", "bolt":
		db, err := database.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return NewBoltConversationRepository(db), nil
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return NewRedisConversationRepository(rdb, cfg.KeyPrefix), nil
	case "sqlite", "mysql":
		db, err := database.OpenGorm(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewGormConversationRepository(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
