// Package service 包含了客户端的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pai-chat-client/internal/model"
	"pai-chat-client/internal/render"
	"pai-chat-client/internal/repository"
	"pai-chat-client/internal/state"
	"pai-chat-client/pkg/exchange"
	"pai-chat-client/pkg/log"
)

// ErrMessageNotFound 表示复制的消息不存在。
var ErrMessageNotFound = errors.New("message not found")

// DefaultApology 是传输失败时展示给用户的通用错误文案。
const DefaultApology = "Sorry, there was an error processing your request. Please try again."

// welcomeTitle 是没有活动会话时的页面标题。
const welcomeTitle = "Chat"

// ViewSink 接收渲染好的界面更新，例如推送到浏览器的 websocket hub。
// Publish 在服务持锁期间被调用，实现方不得回调 ChatService。
type ViewSink interface {
	Publish(views ...render.View)
}

// SendReceipt 描述一次已受理的发送。
type SendReceipt struct {
	ConversationID string        `json:"conversationId"`
	Message        model.Message `json:"message"`
}

// Snapshot 是整页重绘所需的全部数据。
type Snapshot struct {
	ActiveConversationID string                      `json:"activeConversationId"`
	Conversations        []model.ConversationSummary `json:"conversations"`
	Active               *model.Conversation         `json:"active,omitempty"`
	Views                []render.View               `json:"views"`
}

// ChatService 定义了会话控制器对外的用户意图。
type ChatService interface {
	Start(ctx context.Context)
	NewConversation(ctx context.Context) string
	SelectConversation(ctx context.Context, id string) error
	SendMessage(ctx context.Context, text string) (*SendReceipt, error)
	ResetConversation(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error
	CopyMessage(messageID string) (string, error)
	Snapshot() Snapshot
	Wait()
	Close(ctx context.Context) error
}

// Options 配置控制器。
type Options struct {
	ApologyText string
	State       state.Options
}

// pendingExchange 记录一次在途的发送，用于在重绘时恢复占位符。
type pendingExchange struct {
	view   render.View
	handle render.LoadingHandle
}

type chatService struct {
	// mu 串行化所有状态变更、落盘与重绘，相当于单线程事件循环
	mu       sync.Mutex
	state    *state.State
	repo     repository.ConversationRepository
	client   exchange.Client
	renderer render.Renderer
	sink     ViewSink
	apology  string
	pending  map[string][]*pendingExchange
	inflight sync.WaitGroup
	// closed 之后存储可能已关闭，迟到的结果只记日志
	closed bool
}

// NewChatService 创建一个新的 ChatService 实例。调用 Start 之前状态为空。
func NewChatService(repo repository.ConversationRepository, client exchange.Client, renderer render.Renderer, sink ViewSink, opts Options) ChatService {
	apology := opts.ApologyText
	if apology == "" {
		apology = DefaultApology
	}
	return &chatService{
		state:    state.New(opts.State),
		repo:     repo,
		client:   client,
		renderer: renderer,
		sink:     sink,
		apology:  apology,
		pending:  make(map[string][]*pendingExchange),
	}
}

// Start 从持久化存储恢复状态并整页重绘。
func (s *chatService) Start(ctx context.Context) {
	conversations, activeID := s.repo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Restore(conversations, activeID)
	log.Infof("已恢复 %d 个会话，活动会话: %q", len(conversations), s.state.ActiveConversationID)
	s.sink.Publish(s.fullRepaint()...)
}

// NewConversation 新建会话并设为活动会话。
func (s *chatService) NewConversation(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.CreateConversation()
	log.Infow("新建会话", "conversationId", id)
	s.flush(ctx)
	s.sink.Publish(s.fullRepaint()...)
	return id
}

// SelectConversation 切换活动会话。目标不存在时不做任何改变。
func (s *chatService) SelectConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.SelectConversation(id); err != nil {
		log.Warnf("选择会话失败: %s: %v", id, err)
		return err
	}
	s.flush(ctx)
	s.sink.Publish(s.fullRepaint()...)
	return nil
}

// SendMessage 追加用户消息并异步请求回答。空白输入是静默的 no-op，返回 nil。
func (s *chatService) SendMessage(ctx context.Context, text string) (*SendReceipt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	if s.state.Active() == nil {
		s.state.CreateConversation()
		created = true
	}
	convID := s.state.ActiveConversationID
	sessionID := s.state.CurrentSessionID

	msg := model.Message{
		ID:        s.state.NewMessageID(convID),
		Content:   text,
		Role:      model.RoleUser,
		Timestamp: s.state.Now(),
	}
	if err := s.state.AppendMessage(convID, msg); err != nil {
		return nil, err
	}
	renamed := s.state.RenameOnFirstMessage(convID, text)

	loadingView, handle := s.renderer.Loading(convID)
	pe := &pendingExchange{view: loadingView, handle: handle}
	s.pending[convID] = append(s.pending[convID], pe)

	if created {
		// 新会话从未绘制过，整页重绘已包含用户消息与占位符
		s.sink.Publish(s.fullRepaint()...)
	} else {
		views := []render.View{s.renderer.Message(msg), loadingView}
		if renamed {
			views = append(views, s.renderer.Title(s.state.Active().Title))
		}
		s.sink.Publish(views...)
	}
	s.flush(ctx)
	s.sink.Publish(s.listView())

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		// 使用后台上下文：即使发起请求的 HTTP 调用已结束，回答仍然需要落地
		outcome := s.client.SendMessage(context.Background(), text, sessionID)
		s.settleSend(convID, sessionID, pe, outcome)
	}()

	return &SendReceipt{ConversationID: convID, Message: msg}, nil
}

// settleSend 在请求结束后执行。此时会话可能已被删除或已不是活动会话，必须重新校验。
func (s *chatService) settleSend(convID, sentSession string, pe *pendingExchange, outcome exchange.SendOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Warnf("客户端已关闭，丢弃会话 %s 的迟到回答", convID)
		return
	}
	s.dropPending(convID, pe)
	s.sink.Publish(pe.handle.Remove())

	conv, ok := s.state.Get(convID)
	if !ok {
		log.Warnf("会话 %s 已被删除，丢弃迟到的回答", convID)
		s.sink.Publish(s.listView())
		return
	}

	reply := model.Message{ID: s.state.NewMessageID(convID), Timestamp: s.state.Now()}
	switch o := outcome.(type) {
	case exchange.Answered:
		reply.Role = model.RoleBot
		reply.Content = o.Text
		// 请求期间会话被重置过时，旧请求带回的 session 不再有效
		if conv.SessionID == sentSession && s.state.AdoptSessionID(convID, o.SessionID) {
			log.Infow("采用服务端下发的新 session", "conversationId", convID, "sessionId", o.SessionID)
		}
	case exchange.Declined:
		reply.Role = model.RoleError
		reply.Content = o.Message
		log.Warnw("问答服务拒绝了请求", "conversationId", convID, "error", o.Message)
	case exchange.StatusFailure:
		reply.Role = model.RoleError
		reply.Content = s.apology
		log.Error("问答服务返回错误状态", o)
	case exchange.Unreachable:
		reply.Role = model.RoleError
		reply.Content = s.apology
		log.Error("无法连接问答服务", o)
	default:
		reply.Role = model.RoleError
		reply.Content = s.apology
		log.Errorf("未知的发送结果类型: %T", outcome)
	}

	if err := s.state.AppendMessage(convID, reply); err != nil {
		log.Error("追加回答失败", err)
		return
	}
	if convID == s.state.ActiveConversationID {
		s.sink.Publish(s.renderer.Message(reply))
	}
	s.flush(context.Background())
	s.sink.Publish(s.listView())
}

// ResetConversation 清空会话并轮换 session。id 为空时作用于活动会话。
// 本地重置立即生效，远端重置在后台进行。
func (s *chatService) ResetConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.state.ActiveConversationID
		if id == "" {
			return nil
		}
	}
	oldSession, err := s.state.ResetConversation(id)
	if err != nil {
		log.Warnf("重置会话失败: %s: %v", id, err)
		return err
	}
	c, _ := s.state.Get(id)
	localSession := c.SessionID
	log.Infow("会话已重置", "conversationId", id)

	s.flush(ctx)
	s.sink.Publish(s.fullRepaint()...)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		outcome := s.client.ResetSession(context.Background(), oldSession)
		s.settleReset(id, localSession, outcome)
	}()
	return nil
}

func (s *chatService) settleReset(convID, localSession string, outcome exchange.ResetOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Warnf("客户端已关闭，丢弃会话 %s 的重置结果", convID)
		return
	}
	switch o := outcome.(type) {
	case exchange.Reset:
		c, ok := s.state.Get(convID)
		// 期间如果又重置过一次，或会话已删除，则不采用
		if !ok || o.SessionID == "" || c.SessionID != localSession {
			log.Debugf("会话 %s 保留客户端生成的 session", convID)
			return
		}
		s.state.AdoptSessionID(convID, o.SessionID)
		s.flush(context.Background())
	case exchange.ResetFailed:
		log.Error("远端重置会话失败", o)
		s.sink.Publish(s.renderer.Notification(render.LevelWarning, "The server session could not be reset; the conversation was cleared locally."))
	}
}

// DeleteConversation 删除会话。删除活动会话时自动切换到最近更新的会话或欢迎页。
func (s *chatService) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.DeleteConversation(id); err != nil {
		log.Warnf("删除会话失败: %s: %v", id, err)
		return err
	}
	log.Infow("会话已删除", "conversationId", id, "activeConversationId", s.state.ActiveConversationID)
	s.flush(ctx)
	s.sink.Publish(s.fullRepaint()...)
	return nil
}

// CopyMessage 返回消息原文，供复制到剪贴板。
func (s *chatService) CopyMessage(messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.state.FindMessage(messageID)
	if !ok {
		return "", ErrMessageNotFound
	}
	return m.Content, nil
}

// Snapshot 返回当前状态与整页重绘的 View 列表。
func (s *chatService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ActiveConversationID: s.state.ActiveConversationID,
		Conversations:        s.state.Summaries(s.pendingCounts()),
		Views:                s.fullRepaint(),
	}
	if c := s.state.Active(); c != nil {
		snap.Active = c.Clone()
	}
	return snap
}

// Wait 阻塞直到所有在途请求结束。
func (s *chatService) Wait() {
	s.inflight.Wait()
}

// Close 在 ctx 允许的时间内等待在途请求，然后做最后一次落盘。
// 之后才结束的请求不再修改状态，调用方可以安全地关闭存储。
func (s *chatService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warnf("等待在途请求超时，直接保存当前状态")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.repo.Save(context.WithoutCancel(ctx), s.state.Conversations, s.state.ActiveConversationID)
}

// flush 把当前状态写入存储。失败只提示用户，不回滚内存中的修改。
func (s *chatService) flush(ctx context.Context) {
	err := s.repo.Save(context.WithoutCancel(ctx), s.state.Conversations, s.state.ActiveConversationID)
	if err == nil {
		return
	}
	log.Error("保存会话失败", err)
	s.sink.Publish(s.renderer.Notification(render.LevelError, "Your conversations could not be saved: "+err.Error()))
}

func (s *chatService) pendingCounts() map[string]int {
	counts := make(map[string]int, len(s.pending))
	for id, list := range s.pending {
		counts[id] = len(list)
	}
	return counts
}

func (s *chatService) dropPending(convID string, pe *pendingExchange) {
	list := s.pending[convID]
	for i, p := range list {
		if p == pe {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.pending, convID)
		return
	}
	s.pending[convID] = list
}

func (s *chatService) listView() render.View {
	return s.renderer.ConversationList(s.state.Summaries(s.pendingCounts()))
}

// fullRepaint 生成会话列表、标题与消息区的完整重绘。
func (s *chatService) fullRepaint() []render.View {
	views := []render.View{s.listView()}
	active := s.state.Active()
	if active == nil {
		return append(views, s.renderer.Title(welcomeTitle), s.renderer.Welcome())
	}
	views = append(views, s.renderer.Title(active.Title), s.renderer.Conversation(active))
	for _, pe := range s.pending[active.ID] {
		views = append(views, pe.view)
	}
	return views
}
