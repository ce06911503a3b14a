// Package model 包含了客户端的数据模型定义。
package model

import "time"

// Role 标识消息的作者，创建后不再改变。
type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleError Role = "error"
)

// Valid 报告 r 是否为三种已知角色之一。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot, RoleError:
		return true
	}
	return false
}

const (
	// DefaultTitle 是会话收到第一条用户消息之前的占位标题。
	DefaultTitle = "New Conversation"
	// TitleMaxLength 是标题保留的最大字符数（按 rune 计）。
	TitleMaxLength = 30
	// TitleEllipsis 在标题被截断时追加。
	TitleEllipsis = "..."
)

// Message 代表会话中的单条消息。Content 保存原始文本，不做任何转义。
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation 代表一条持久化的聊天线程。
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"` // 最后修改时间，也是列表排序键
	SessionID string    `json:"sessionId"`
}

// HasUserMessage 报告会话中是否已有用户消息。
func (c *Conversation) HasUserMessage() bool {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// Clone 返回一个不与 c 共享 Messages 底层数组的副本。
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// Conversations 是会话 ID 到会话记录的映射，也是持久化的基本单元。
type Conversations map[string]*Conversation

// ConversationSummary 是会话列表渲染所需的精简视图。
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Timestamp    LocalTime `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
	Pending      int       `json:"pending"`
	Active       bool      `json:"active"`
}
