// Package repository 提供了会话状态的持久化实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/log"
)

// 持久化使用的固定键名：完整的会话映射，以及最后活动会话的 ID。
const (
	KeyConversations      = "chat_conversations"
	KeyActiveConversation = "chat_active_conversation"
)

// ErrPersist 包装所有写入失败，调用方据此向用户提示而不是中断操作。
var ErrPersist = errors.New("persist conversations")

// ConversationRepository 定义了会话状态的读写接口。
type ConversationRepository interface {
	// Load 读取全部会话与最后活动会话 ID。数据缺失或损坏时返回空映射，
	// 并把存储重置为空映射；读取本身失败时同样返回空映射，但不触碰存储。
	// 错误只记录日志，不向上返回。
	Load(ctx context.Context) (model.Conversations, string)
	// Save 整体写入会话映射与活动会话指针。
	Save(ctx context.Context, conversations model.Conversations, activeID string) error
	Close() error
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersist, op, err)
}

func encodeConversations(conversations model.Conversations) ([]byte, error) {
	if conversations == nil {
		conversations = model.Conversations{}
	}
	return json.Marshal(conversations)
}

// decodeConversations 解码并校验会话映射，任何一条记录不合法都视为整体损坏。
func decodeConversations(raw []byte) (model.Conversations, error) {
	var out model.Conversations
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversations: %w", err)
	}
	if out == nil {
		return nil, errors.New("conversations blob is null")
	}
	for id, c := range out {
		if c == nil {
			return nil, fmt.Errorf("conversation %q is null", id)
		}
		if c.ID != id {
			return nil, fmt.Errorf("conversation key %q does not match id %q", id, c.ID)
		}
		if c.Messages == nil {
			c.Messages = []model.Message{}
		}
		for _, m := range c.Messages {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("conversation %q has message %q with unknown role %q", id, m.ID, m.Role)
			}
		}
	}
	return out, nil
}

// healingLoad 是各后端共用的 Load 逻辑：found 为 false 或解码失败时调用 reset 自愈。
// readErr 非空说明存储暂时不可读，此时数据可能完好，只能以空状态启动，绝不重置。
func healingLoad(ctx context.Context, backend string, raw []byte, found bool, readErr error, activeID string, reset func(context.Context) error) (model.Conversations, string) {
	if readErr != nil {
		log.Errorf("读取会话存储失败 (%s)，本次以空状态启动，已保存的数据保持不变: %v", backend, readErr)
		return model.Conversations{}, ""
	}
	if found {
		conversations, err := decodeConversations(raw)
		if err == nil {
			if _, ok := conversations[activeID]; !ok {
				activeID = ""
			}
			return conversations, activeID
		}
		log.Warnw("持久化的会话数据已损坏，重置为空", "backend", backend, "error", err)
	}
	if err := reset(ctx); err != nil {
		log.Errorf("重置会话存储失败 (%s): %v", backend, err)
	}
	return model.Conversations{}, ""
}
