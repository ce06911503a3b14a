package repository

import (
	"context"
	"fmt"

	"pai-chat-client/internal/model"

	"github.com/go-redis/redis/v8"
)

type redisConversationRepository struct {
	redisClient *redis.Client
	prefix      string
}

// NewRedisConversationRepository 创建一个基于 Redis 的仓库，键以 "<prefix>:" 为命名空间。
func NewRedisConversationRepository(redisClient *redis.Client, prefix string) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, prefix: prefix}
}

func (r *redisConversationRepository) key(name string) string {
	return fmt.Sprintf("%s:%s", r.prefix, name)
}

// Load 从 Redis 读取会话映射与活动会话指针。
func (r *redisConversationRepository) Load(ctx context.Context) (model.Conversations, string) {
	found := true
	var readErr error
	raw, err := r.redisClient.Get(ctx, r.key(KeyConversations)).Bytes()
	if err == redis.Nil {
		found = false
	} else if err != nil {
		readErr = err
	}
	active, err := r.redisClient.Get(ctx, r.key(KeyActiveConversation)).Result()
	if err != nil && err != redis.Nil && readErr == nil {
		readErr = err
	}
	return healingLoad(ctx, "redis", raw, found, readErr, active, func(ctx context.Context) error {
		return r.Save(ctx, model.Conversations{}, "")
	})
}

// Save 用 MULTI/EXEC 同时写入两个键。
func (r *redisConversationRepository) Save(ctx context.Context, conversations model.Conversations, activeID string) error {
	data, err := encodeConversations(conversations)
	if err != nil {
		return persistErr("encode", err)
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(KeyConversations), data, 0)
		if activeID == "" {
			pipe.Del(ctx, r.key(KeyActiveConversation))
		} else {
			pipe.Set(ctx, r.key(KeyActiveConversation), activeID, 0)
		}
		return nil
	})
	if err != nil {
		return persistErr("redis tx", err)
	}
	return nil
}

func (r *redisConversationRepository) Close() error {
	return r.redisClient.Close()
}
