// Package render 把消息与会话渲染成 HTML 片段。
//
// 渲染函数是纯函数：只返回 View（一次界面更新的描述），不直接操作任何界面，
// 由 ViewSink 负责把 View 送到浏览器。
package render

import (
	"fmt"
	"strings"

	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/idgen"
)

// Op 描述浏览器端应如何应用一个 View。
type Op string

const (
	OpAppend  Op = "append"  // 把 HTML 追加到 Target 容器末尾
	OpReplace Op = "replace" // 用 HTML 替换 Target 容器的内容
	OpRemove  Op = "remove"  // 删除 id 为 Target 的元素
	OpNotify  Op = "notify"  // 弹出一条非阻塞提示
)

// 页面上的固定容器 ID。
const (
	TargetMessages      = "chat-messages"
	TargetConversations = "conversation-list"
	TargetTitle         = "chat-title"
	TargetNotifications = "notifications"
)

// Level 是提示消息的级别。
type Level string

const (
	LevelWarning Level = "warning" // 操作已生效但有副作用未完成
	LevelError   Level = "error"   // 修改没有被保存
)

// View 是一次不透明的界面更新。
type View struct {
	Op     Op     `json:"op"`
	Target string `json:"target"`
	HTML   string `json:"html,omitempty"`
}

// LoadingHandle 指向一个已渲染的"正在输入"占位符，调用方在请求结束后显式移除。
type LoadingHandle struct {
	elementID string
}

// Remove 返回删除占位符的 View。
func (h LoadingHandle) Remove() View {
	return View{Op: OpRemove, Target: h.elementID}
}

// Renderer 定义了渲染能力，控制器只依赖这个接口。
type Renderer interface {
	Message(m model.Message) View
	Loading(conversationID string) (View, LoadingHandle)
	ConversationList(items []model.ConversationSummary) View
	Conversation(c *model.Conversation) View
	Title(title string) View
	Welcome() View
	Notification(level Level, text string) View
}

type htmlRenderer struct {
	welcomeTitle string
}

// NewHTMLRenderer 创建默认的 HTML 渲染器。
func NewHTMLRenderer() Renderer {
	return &htmlRenderer{welcomeTitle: "Welcome"}
}

// MessageElementID 返回消息在页面上的元素 ID。
func MessageElementID(messageID string) string {
	return "msg-" + messageID
}

func (r *htmlRenderer) Message(m model.Message) View {
	return View{Op: OpAppend, Target: TargetMessages, HTML: messageHTML(m)}
}

func messageHTML(m model.Message) string {
	var class, content, extra string
	switch m.Role {
	case model.RoleBot:
		class = "bot-message"
		content = FormatBot(m.Content)
		extra = fmt.Sprintf(`<button class="copy-btn" data-message-id="%s" title="Copy">Copy</button>`, Escape(m.ID))
	case model.RoleError:
		class = "error-message"
		content = Escape(m.Content)
	default:
		// 用户消息只转义，不做格式化
		class = "user-message"
		content = Escape(m.Content)
	}
	return fmt.Sprintf(
		`<div class="message %s" id="%s" data-message-id="%s"><div class="message-content">%s</div><div class="message-meta"><span class="message-time">%s</span>%s</div></div>`,
		class, Escape(MessageElementID(m.ID)), Escape(m.ID), content, m.Timestamp.Local().Format("15:04"), extra,
	)
}

func (r *htmlRenderer) Loading(conversationID string) (View, LoadingHandle) {
	h := LoadingHandle{elementID: "loading-" + idgen.New()}
	html := fmt.Sprintf(
		`<div class="message bot-message loading" id="%s" data-conversation-id="%s"><div class="typing-indicator"><span></span><span></span><span></span></div></div>`,
		h.elementID, Escape(conversationID),
	)
	return View{Op: OpAppend, Target: TargetMessages, HTML: html}, h
}

func (r *htmlRenderer) ConversationList(items []model.ConversationSummary) View {
	var b strings.Builder
	if len(items) == 0 {
		b.WriteString(`<li class="conversation-empty">No conversations yet</li>`)
	}
	for _, it := range items {
		class := "conversation-item"
		if it.Active {
			class += " active"
		}
		pending := ""
		if it.Pending > 0 {
			pending = `<span class="conversation-pending" title="Waiting for reply"></span>`
		}
		fmt.Fprintf(&b,
			`<li class="%s" data-conversation-id="%s"><span class="conversation-title">%s</span>%s<span class="conversation-time">%s</span><button class="delete-btn" data-conversation-id="%s" title="Delete">&times;</button></li>`,
			class, Escape(it.ID), Escape(it.Title), pending, Escape(it.Timestamp.String()), Escape(it.ID),
		)
	}
	return View{Op: OpReplace, Target: TargetConversations, HTML: b.String()}
}

func (r *htmlRenderer) Conversation(c *model.Conversation) View {
	var b strings.Builder
	for _, m := range c.Messages {
		b.WriteString(messageHTML(m))
	}
	return View{Op: OpReplace, Target: TargetMessages, HTML: b.String()}
}

func (r *htmlRenderer) Title(title string) View {
	return View{Op: OpReplace, Target: TargetTitle, HTML: Escape(title)}
}

func (r *htmlRenderer) Welcome() View {
	return View{Op: OpReplace, Target: TargetMessages, HTML: `<div class="welcome-screen"><h2>` + Escape(r.welcomeTitle) +
		`</h2><p>Start a new conversation or pick one from the list.</p></div>`}
}

func (r *htmlRenderer) Notification(level Level, text string) View {
	return View{Op: OpNotify, Target: TargetNotifications,
		HTML: fmt.Sprintf(`<div class="notification notification-%s">%s</div>`, level, Escape(text))}
}
