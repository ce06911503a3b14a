package render

import (
	"strings"
	"testing"
	"time"

	"pai-chat-client/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBot(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hi!", want: "Hi!"},
		{name: "escapes markup", in: "<script>alert(1)</script>", want: "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{name: "bold", in: "**strong** text", want: "<strong>strong</strong> text"},
		{name: "italic", in: "an *emphasis*", want: "an <em>emphasis</em>"},
		{name: "newlines", in: "a\nb", want: "a<br>b"},
		{name: "inline code is not formatted", in: "use `**x**` here", want: "use <code>**x**</code> here"},
		{name: "code block", in: "```go\nfmt.Println(\"<hi>\")\n```", want: "<pre><code>fmt.Println(&#34;&lt;hi&gt;&#34;)</code></pre>"},
		{name: "code block keeps newlines raw", in: "```\na\nb\n```", want: "<pre><code>a\nb</code></pre>"},
		{name: "url", in: "see https://example.com/a?x=1&y=2.",
			want: `see <a href="https://example.com/a?x=1&amp;y=2" target="_blank" rel="noopener noreferrer">https://example.com/a?x=1&amp;y=2</a>.`},
		{name: "url stops at escaped quote", in: `"http://x.io"`,
			want: `&#34;<a href="http://x.io" target="_blank" rel="noopener noreferrer">http://x.io</a>&#34;`},
		{name: "url in bold is not broken", in: "**http://x.io**",
			want: `<strong><a href="http://x.io" target="_blank" rel="noopener noreferrer">http://x.io</a></strong>`},
		{name: "nul bytes stripped", in: "a\x000\x00b", want: "a0b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBot(tt.in))
		})
	}
}

func TestMessage_PerRole(t *testing.T) {
	r := NewHTMLRenderer()
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	user := r.Message(model.Message{ID: "c:1", Content: "**hi** <b>", Role: model.RoleUser, Timestamp: ts})
	assert.Equal(t, OpAppend, user.Op)
	assert.Equal(t, TargetMessages, user.Target)
	assert.Contains(t, user.HTML, "user-message")
	assert.Contains(t, user.HTML, "**hi** &lt;b&gt;", "user text is escaped but not formatted")
	assert.NotContains(t, user.HTML, "<strong>")
	assert.NotContains(t, user.HTML, "copy-btn")

	bot := r.Message(model.Message{ID: "c:2", Content: "**hi**", Role: model.RoleBot, Timestamp: ts})
	assert.Contains(t, bot.HTML, "bot-message")
	assert.Contains(t, bot.HTML, "<strong>hi</strong>")
	assert.Contains(t, bot.HTML, `data-message-id="c:2"`)
	assert.Contains(t, bot.HTML, "copy-btn")
	assert.Contains(t, bot.HTML, "10:00")

	errView := r.Message(model.Message{ID: "c:3", Content: "*oops*", Role: model.RoleError, Timestamp: ts})
	assert.Contains(t, errView.HTML, "error-message")
	assert.Contains(t, errView.HTML, "*oops*")
	assert.NotContains(t, errView.HTML, "<em>")
}

func TestMessage_EscapesIDs(t *testing.T) {
	r := NewHTMLRenderer()
	v := r.Message(model.Message{ID: `x"><img src=x>`, Content: "c", Role: model.RoleBot})
	assert.NotContains(t, v.HTML, `<img`)
}

func TestLoading_HandleRemovesItsOwnPlaceholder(t *testing.T) {
	r := NewHTMLRenderer()
	v1, h1 := r.Loading("conv-1")
	_, h2 := r.Loading("conv-1")

	assert.Equal(t, OpAppend, v1.Op)
	assert.Contains(t, v1.HTML, "typing-indicator")

	rm := h1.Remove()
	assert.Equal(t, OpRemove, rm.Op)
	assert.Contains(t, v1.HTML, `id="`+rm.Target+`"`)
	assert.NotEqual(t, rm.Target, h2.Remove().Target)
}

func TestConversationList_Order(t *testing.T) {
	r := NewHTMLRenderer()
	now := time.Now()
	v := r.ConversationList([]model.ConversationSummary{
		{ID: "new", Title: "Newer <chat>", Timestamp: model.LocalTime(now), Active: true, Pending: 1},
		{ID: "old", Title: "Older", Timestamp: model.LocalTime(now.Add(-time.Hour))},
	})

	assert.Equal(t, OpReplace, v.Op)
	assert.Equal(t, TargetConversations, v.Target)
	require.Less(t, strings.Index(v.HTML, `data-conversation-id="new"`), strings.Index(v.HTML, `data-conversation-id="old"`))
	assert.Contains(t, v.HTML, "Newer &lt;chat&gt;")
	assert.Contains(t, v.HTML, `class="conversation-item active"`)
	assert.Contains(t, v.HTML, "conversation-pending")

	empty := r.ConversationList(nil)
	assert.Contains(t, empty.HTML, "conversation-empty")
}

func TestConversationAndWelcome(t *testing.T) {
	r := NewHTMLRenderer()
	c := &model.Conversation{ID: "c", Messages: []model.Message{
		{ID: "c:1", Content: "Hello", Role: model.RoleUser},
		{ID: "c:2", Content: "Hi!", Role: model.RoleBot},
	}}

	v := r.Conversation(c)
	assert.Equal(t, OpReplace, v.Op)
	assert.Less(t, strings.Index(v.HTML, "Hello"), strings.Index(v.HTML, "Hi!"))

	w := r.Welcome()
	assert.Equal(t, TargetMessages, w.Target)
	assert.Contains(t, w.HTML, "welcome-screen")

	n := r.Notification(LevelWarning, "disk <full>")
	assert.Equal(t, OpNotify, n.Op)
	assert.Contains(t, n.HTML, "notification-warning")
	assert.Contains(t, n.HTML, "disk &lt;full&gt;")
	assert.Contains(t, r.Notification(LevelError, "x").HTML, "notification-error")

	assert.Equal(t, "a &amp; b", r.Title("a & b").HTML)
}
