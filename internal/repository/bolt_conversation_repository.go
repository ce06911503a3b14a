package repository

import (
	"context"

	"pai-chat-client/internal/model"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("chat_state")

type boltConversationRepository struct {
	db *bolt.DB
}

// NewBoltConversationRepository 基于本地 BoltDB 文件创建仓库，两个键写在同一个事务里。
func NewBoltConversationRepository(db *bolt.DB) ConversationRepository {
	return &boltConversationRepository{db: db}
}

func (r *boltConversationRepository) Load(ctx context.Context) (model.Conversations, string) {
	var (
		raw    []byte
		active string
		found  bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(KeyConversations)); v != nil {
			// bolt 的值只在事务内有效
			raw = append([]byte(nil), v...)
			found = true
		}
		active = string(b.Get([]byte(KeyActiveConversation)))
		return nil
	})
	return healingLoad(ctx, "bolt", raw, found, err, active, func(ctx context.Context) error {
		return r.Save(ctx, model.Conversations{}, "")
	})
}

func (r *boltConversationRepository) Save(_ context.Context, conversations model.Conversations, activeID string) error {
	data, err := encodeConversations(conversations)
	if err != nil {
		return persistErr("encode", err)
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(stateBucket)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(KeyConversations), data); err != nil {
			return err
		}
		if activeID == "" {
			return b.Delete([]byte(KeyActiveConversation))
		}
		return b.Put([]byte(KeyActiveConversation), []byte(activeID))
	})
	if err != nil {
		return persistErr("bolt update", err)
	}
	return nil
}

func (r *boltConversationRepository) Close() error {
	return r.db.Close()
}
