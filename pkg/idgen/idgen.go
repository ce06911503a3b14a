// Package idgen 生成会话、会话 session 与消息使用的不透明标识符。
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// scopeSep 分隔作用域与本地 ID，UUID 字符集中不含该字符。
const scopeSep = ":"

// New 返回一个 UUIDv7：高位是毫秒时间戳，其余为随机位。
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// 熵源异常时退化为纯随机 v4
		return uuid.NewString()
	}
	return id.String()
}

// Scoped 返回带作用域前缀的 ID，如 "<conversationID>:<uuid>"。
// 消息 ID 以所属会话为作用域，因此在整个存储范围内唯一。
func Scoped(scope string) string {
	if scope == "" {
		return New()
	}
	return scope + scopeSep + New()
}

// ScopeOf 取出 Scoped 生成的 ID 的作用域部分；非作用域 ID 返回空串。
func ScopeOf(id string) string {
	i := strings.LastIndex(id, scopeSep)
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// Generator 允许在测试中替换 ID 来源。
type Generator interface {
	New() string
	Scoped(scope string) string
}

type uuidGenerator struct{}

func (uuidGenerator) New() string                { return New() }
func (uuidGenerator) Scoped(scope string) string { return Scoped(scope) }

// Default 是基于 UUIDv7 的生成器。
var Default Generator = uuidGenerator{}
