// Package state 保存一个页面生命周期内的全部会话状态，是运行期唯一的数据来源。
//
// State 不做任何加锁，也不负责持久化与渲染：调用方（service.ChatService）
// 负责串行化访问，并在每次变更后立即落盘、重绘。
package state

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/idgen"
)

// ErrConversationNotFound 表示目标会话不存在。
var ErrConversationNotFound = errors.New("conversation not found")

// Options 覆盖默认的标题规则、时钟与 ID 来源。
type Options struct {
	DefaultTitle   string
	TitleMaxLength int
	Now            func() time.Time
	IDs            idgen.Generator
}

// State 是应用状态。ActiveConversationID 为空表示欢迎页。
type State struct {
	ActiveConversationID string
	Conversations        model.Conversations
	CurrentSessionID     string
	IsNewConversation    bool

	defaultTitle   string
	titleMaxLength int
	now            func() time.Time
	ids            idgen.Generator
}

// New 创建一个空状态。
func New(opts Options) *State {
	s := &State{
		Conversations:  make(model.Conversations),
		defaultTitle:   opts.DefaultTitle,
		titleMaxLength: opts.TitleMaxLength,
		now:            opts.Now,
		ids:            opts.IDs,
	}
	if s.defaultTitle == "" {
		s.defaultTitle = model.DefaultTitle
	}
	if s.titleMaxLength <= 0 {
		s.titleMaxLength = model.TitleMaxLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ids == nil {
		s.ids = idgen.Default
	}
	return s
}

// DefaultTitle 返回占位标题。
func (s *State) DefaultTitle() string { return s.defaultTitle }

// Now 返回状态使用的时钟读数。
func (s *State) Now() time.Time { return s.now() }

// NewMessageID 为 conversationID 下的新消息生成带作用域的 ID。
func (s *State) NewMessageID(conversationID string) string {
	return s.ids.Scoped(conversationID)
}

// NewSessionID 生成一个新的 session 标识。
func (s *State) NewSessionID() string {
	return s.ids.New()
}

// Restore 用持久化数据初始化状态。悬空的 activeID 会被忽略。
func (s *State) Restore(conversations model.Conversations, activeID string) {
	if conversations == nil {
		conversations = make(model.Conversations)
	}
	s.Conversations = conversations
	s.ActiveConversationID = ""
	s.CurrentSessionID = ""
	s.IsNewConversation = false
	if _, ok := s.Conversations[activeID]; ok {
		s.activate(activeID)
	}
}

// Active 返回当前活动会话，没有时返回 nil。
func (s *State) Active() *model.Conversation {
	if s.ActiveConversationID == "" {
		return nil
	}
	return s.Conversations[s.ActiveConversationID]
}

// Get 按 ID 返回会话。
func (s *State) Get(id string) (*model.Conversation, bool) {
	c, ok := s.Conversations[id]
	return c, ok
}

// CreateConversation 新建一个空会话并设为活动会话。
func (s *State) CreateConversation() string {
	id := s.ids.New()
	s.Conversations[id] = &model.Conversation{
		ID:        id,
		Title:     s.defaultTitle,
		Messages:  []model.Message{},
		Timestamp: s.now(),
		SessionID: s.ids.New(),
	}
	s.ActiveConversationID = id
	s.CurrentSessionID = s.Conversations[id].SessionID
	s.IsNewConversation = true
	return id
}

// SelectConversation 切换活动会话。id 不存在时状态保持不变。
func (s *State) SelectConversation(id string) error {
	if _, ok := s.Conversations[id]; !ok {
		return ErrConversationNotFound
	}
	s.activate(id)
	return nil
}

// activate 设置活动会话，并按目标自身的情况推导 IsNewConversation：
// 仍是占位标题且没有任何用户消息的会话视为新会话。
func (s *State) activate(id string) {
	c := s.Conversations[id]
	s.ActiveConversationID = id
	s.CurrentSessionID = c.SessionID
	s.IsNewConversation = c.Title == s.defaultTitle && !c.HasUserMessage()
}

// AppendMessage 追加一条消息并刷新会话的修改时间。
func (s *State) AppendMessage(conversationID string, msg model.Message) error {
	c, ok := s.Conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	c.Messages = append(c.Messages, msg)
	c.Timestamp = s.now()
	return nil
}

// RenameOnFirstMessage 仅在会话仍处于"新会话"状态时，用首条用户消息生成标题，
// 随后清除新会话标记。返回是否发生了重命名。
func (s *State) RenameOnFirstMessage(conversationID, userText string) bool {
	if !s.IsNewConversation || conversationID != s.ActiveConversationID {
		return false
	}
	c, ok := s.Conversations[conversationID]
	if !ok {
		return false
	}
	c.Title = TruncateTitle(userText, s.titleMaxLength)
	s.IsNewConversation = false
	return true
}

// DeleteConversation 删除会话。若删除的是活动会话，则切换到最近更新的剩余会话，
// 没有剩余会话时回到欢迎页。
func (s *State) DeleteConversation(id string) error {
	if _, ok := s.Conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.Conversations, id)
	if s.ActiveConversationID != id {
		return nil
	}
	s.ActiveConversationID = ""
	s.CurrentSessionID = ""
	s.IsNewConversation = false
	if next := s.mostRecent(); next != "" {
		s.activate(next)
	}
	return nil
}

// ResetConversation 清空消息并换发新的 session ID；ID、标题与列表位置保持不变。
// 返回被替换掉的旧 session ID。
func (s *State) ResetConversation(id string) (string, error) {
	c, ok := s.Conversations[id]
	if !ok {
		return "", ErrConversationNotFound
	}
	old := c.SessionID
	c.Messages = []model.Message{}
	c.SessionID = s.ids.New()
	if id == s.ActiveConversationID {
		s.CurrentSessionID = c.SessionID
	}
	return old, nil
}

// AdoptSessionID 采用远端下发的 session ID。
func (s *State) AdoptSessionID(conversationID, sessionID string) bool {
	c, ok := s.Conversations[conversationID]
	if !ok || sessionID == "" || c.SessionID == sessionID {
		return false
	}
	c.SessionID = sessionID
	if conversationID == s.ActiveConversationID {
		s.CurrentSessionID = sessionID
	}
	return true
}

// FindMessage 按 ID 查找消息。作用域 ID 直接定位所属会话，旧数据则退化为全量扫描。
func (s *State) FindMessage(messageID string) (model.Message, bool) {
	if scope := idgen.ScopeOf(messageID); scope != "" {
		if c, ok := s.Conversations[scope]; ok {
			for _, m := range c.Messages {
				if m.ID == messageID {
					return m, true
				}
			}
		}
	}
	for _, id := range s.sortedIDs() {
		for _, m := range s.Conversations[id].Messages {
			if m.ID == messageID {
				return m, true
			}
		}
	}
	return model.Message{}, false
}

// Summaries 返回按修改时间倒序排列的会话摘要，pending 为各会话在途请求数。
func (s *State) Summaries(pending map[string]int) []model.ConversationSummary {
	ids := s.sortedIDs()
	out := make([]model.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		c := s.Conversations[id]
		out = append(out, model.ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			Timestamp:    model.LocalTime(c.Timestamp),
			MessageCount: len(c.Messages),
			Pending:      pending[id],
			Active:       id == s.ActiveConversationID,
		})
	}
	return out
}

// sortedIDs 按 Timestamp 倒序，时间相同按 ID 排序以保证结果稳定。
func (s *State) sortedIDs() []string {
	ids := make([]string, 0, len(s.Conversations))
	for id := range s.Conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.Conversations[ids[i]].Timestamp, s.Conversations[ids[j]].Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (s *State) mostRecent() string {
	ids := s.sortedIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// TruncateTitle 去掉首尾空白后截取前 max 个字符，超长时追加省略号。
func TruncateTitle(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + model.TitleEllipsis
}
