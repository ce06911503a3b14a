package state

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"pai-chat-client/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return fmt.Sprintf("id-%03d", g.n)
}

func (g *seqIDs) Scoped(scope string) string { return scope + ":" + g.New() }

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestState() *State {
	clock := &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{Now: clock.Now, IDs: &seqIDs{}})
}

func userMsg(s *State, convID, text string) model.Message {
	return model.Message{ID: s.NewMessageID(convID), Content: text, Role: model.RoleUser, Timestamp: s.Now()}
}

func TestCreateConversation(t *testing.T) {
	s := newTestState()
	id := s.CreateConversation()

	c, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.DefaultTitle, c.Title)
	assert.Empty(t, c.Messages)
	assert.NotEmpty(t, c.SessionID)
	assert.Equal(t, id, s.ActiveConversationID)
	assert.Equal(t, c.SessionID, s.CurrentSessionID)
	assert.True(t, s.IsNewConversation)
}

func TestSelectConversation(t *testing.T) {
	s := newTestState()
	first := s.CreateConversation()
	require.NoError(t, s.AppendMessage(first, userMsg(s, first, "hello")))
	require.True(t, s.RenameOnFirstMessage(first, "hello"))
	second := s.CreateConversation()

	require.NoError(t, s.SelectConversation(first))
	assert.Equal(t, first, s.ActiveConversationID)
	assert.Equal(t, s.Conversations[first].SessionID, s.CurrentSessionID)
	assert.False(t, s.IsNewConversation)

	// 空会话被重新选中后仍然可以命名
	require.NoError(t, s.SelectConversation(second))
	assert.True(t, s.IsNewConversation)

	err := s.SelectConversation("missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Equal(t, second, s.ActiveConversationID)
}

func TestAppendMessage_UpdatesTimestampAndOrder(t *testing.T) {
	s := newTestState()
	id := s.CreateConversation()
	before := s.Conversations[id].Timestamp

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendMessage(id, userMsg(s, id, fmt.Sprintf("m%d", i))))
	}

	c := s.Conversations[id]
	require.Len(t, c.Messages, 3)
	for i, m := range c.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
	assert.True(t, c.Timestamp.After(before))

	assert.ErrorIs(t, s.AppendMessage("missing", model.Message{}), ErrConversationNotFound)
}

func TestRenameOnFirstMessage_OnlyOnce(t *testing.T) {
	s := newTestState()
	id := s.CreateConversation()

	assert.True(t, s.RenameOnFirstMessage(id, "Hello"))
	assert.Equal(t, "Hello", s.Conversations[id].Title)
	assert.False(t, s.IsNewConversation)

	assert.False(t, s.RenameOnFirstMessage(id, "Something else"))
	assert.Equal(t, "Hello", s.Conversations[id].Title)
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "Hello", want: "Hello"},
		{name: "exact", in: strings.Repeat("a", 30), want: strings.Repeat("a", 30)},
		{name: "fifty chars", in: strings.Repeat("abcde", 10), want: strings.Repeat("abcde", 6) + "..."},
		{name: "trimmed", in: "  padded  ", want: "padded"},
		{name: "multibyte", in: strings.Repeat("你好", 20), want: strings.Repeat("你好", 15) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateTitle(tt.in, model.TitleMaxLength))
		})
	}
}

func TestDeleteConversation(t *testing.T) {
	t.Run("only conversation goes to welcome", func(t *testing.T) {
		s := newTestState()
		id := s.CreateConversation()

		require.NoError(t, s.DeleteConversation(id))
		assert.Empty(t, s.ActiveConversationID)
		assert.Empty(t, s.CurrentSessionID)
		assert.Nil(t, s.Active())
	})

	t.Run("active falls back to most recently updated", func(t *testing.T) {
		s := newTestState()
		a := s.CreateConversation()
		b := s.CreateConversation()
		c := s.CreateConversation()
		// a 最近更新
		require.NoError(t, s.AppendMessage(a, userMsg(s, a, "bump")))
		require.NoError(t, s.SelectConversation(c))

		require.NoError(t, s.DeleteConversation(c))
		assert.Equal(t, a, s.ActiveConversationID)
		assert.Equal(t, s.Conversations[a].SessionID, s.CurrentSessionID)
		_, ok := s.Get(b)
		assert.True(t, ok)
	})

	t.Run("deleting inactive keeps active", func(t *testing.T) {
		s := newTestState()
		a := s.CreateConversation()
		b := s.CreateConversation()

		require.NoError(t, s.DeleteConversation(a))
		assert.Equal(t, b, s.ActiveConversationID)
	})

	t.Run("missing", func(t *testing.T) {
		s := newTestState()
		assert.ErrorIs(t, s.DeleteConversation("nope"), ErrConversationNotFound)
	})
}

func TestActivePointerInvariant_RandomOps(t *testing.T) {
	s := newTestState()
	rng := rand.New(rand.NewSource(42))
	var ids []string

	for i := 0; i < 500; i++ {
		if len(ids) == 0 || rng.Intn(3) > 0 {
			ids = append(ids, s.CreateConversation())
		} else {
			k := rng.Intn(len(ids))
			require.NoError(t, s.DeleteConversation(ids[k]))
			ids = append(ids[:k], ids[k+1:]...)
		}

		if s.ActiveConversationID != "" {
			c, ok := s.Conversations[s.ActiveConversationID]
			require.True(t, ok, "active id %s not in store", s.ActiveConversationID)
			require.Equal(t, c.SessionID, s.CurrentSessionID)
		} else {
			require.Empty(t, s.Conversations)
		}
	}
}

func TestResetConversation(t *testing.T) {
	s := newTestState()
	id := s.CreateConversation()
	require.NoError(t, s.AppendMessage(id, userMsg(s, id, "Hello")))
	s.RenameOnFirstMessage(id, "Hello")
	before := s.Conversations[id].Clone()

	old, err := s.ResetConversation(id)
	require.NoError(t, err)

	c := s.Conversations[id]
	assert.Equal(t, before.SessionID, old)
	assert.Empty(t, c.Messages)
	assert.NotEqual(t, before.SessionID, c.SessionID)
	assert.Equal(t, c.SessionID, s.CurrentSessionID)
	assert.Equal(t, before.ID, c.ID)
	assert.Equal(t, "Hello", c.Title)
	assert.Equal(t, before.Timestamp, c.Timestamp)

	// 重置不会重新开放命名
	assert.False(t, s.RenameOnFirstMessage(id, "Other"))

	_, err = s.ResetConversation("missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAdoptSessionID(t *testing.T) {
	s := newTestState()
	a := s.CreateConversation()
	b := s.CreateConversation()

	assert.True(t, s.AdoptSessionID(a, "server-a"))
	assert.Equal(t, "server-a", s.Conversations[a].SessionID)
	assert.NotEqual(t, "server-a", s.CurrentSessionID, "inactive conversation must not change current session")

	assert.True(t, s.AdoptSessionID(b, "server-b"))
	assert.Equal(t, "server-b", s.CurrentSessionID)

	assert.False(t, s.AdoptSessionID(b, ""))
	assert.False(t, s.AdoptSessionID("missing", "x"))
}

func TestSummaries_DescendingTimestamp(t *testing.T) {
	s := newTestState()
	older := s.CreateConversation()
	newer := s.CreateConversation()
	require.NoError(t, s.AppendMessage(newer, userMsg(s, newer, "hi")))

	list := s.Summaries(map[string]int{newer: 1})
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].ID)
	assert.Equal(t, older, list[1].ID)
	assert.Equal(t, 1, list[0].Pending)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.True(t, list[0].Active)
	assert.False(t, list[1].Active)

	require.NoError(t, s.AppendMessage(older, userMsg(s, older, "bump")))
	list = s.Summaries(nil)
	assert.Equal(t, older, list[0].ID)
}

func TestFindMessage(t *testing.T) {
	s := newTestState()
	a := s.CreateConversation()
	msg := userMsg(s, a, "copy me")
	require.NoError(t, s.AppendMessage(a, msg))
	b := s.CreateConversation()
	legacy := model.Message{ID: "legacy-1", Content: "old", Role: model.RoleBot}
	require.NoError(t, s.AppendMessage(b, legacy))

	got, ok := s.FindMessage(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "copy me", got.Content)

	got, ok = s.FindMessage("legacy-1")
	require.True(t, ok)
	assert.Equal(t, "old", got.Content)

	_, ok = s.FindMessage("nope")
	assert.False(t, ok)
}

func TestRestore(t *testing.T) {
	s := newTestState()
	named := &model.Conversation{ID: "c1", Title: "Hello", SessionID: "s1",
		Messages: []model.Message{{ID: "c1:m1", Content: "Hello", Role: model.RoleUser}}}
	fresh := &model.Conversation{ID: "c2", Title: model.DefaultTitle, SessionID: "s2", Messages: []model.Message{}}

	s.Restore(model.Conversations{"c1": named, "c2": fresh}, "c2")
	assert.Equal(t, "c2", s.ActiveConversationID)
	assert.Equal(t, "s2", s.CurrentSessionID)
	assert.True(t, s.IsNewConversation)

	s.Restore(model.Conversations{"c1": named}, "c2")
	assert.Empty(t, s.ActiveConversationID, "dangling pointer is dropped")

	s.Restore(nil, "")
	assert.NotNil(t, s.Conversations)
}
