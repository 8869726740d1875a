package server

import (
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ofirdahan/poalim-chat/internal/bot"
	"github.com/ofirdahan/poalim-chat/internal/chat"
	"github.com/ofirdahan/poalim-chat/internal/config"
	"github.com/ofirdahan/poalim-chat/internal/models"
	"github.com/ofirdahan/poalim-chat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zeroSource struct{}

func (zeroSource) Int63() int64    { return 0 }
func (zeroSource) Seed(seed int64) {}

type sentEvent struct {
	RoomID string
	Event  string
	Data   any
}

// recorder collects broadcasts and unicasts from a session under test.
type recorder struct {
	mu       sync.Mutex
	room     []sentEvent
	unicasts []sentEvent
	switches [][2]string
}

func (r *recorder) ToRoom(roomID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = append(r.room, sentEvent{RoomID: roomID, Event: event, Data: data})
}

func (r *recorder) unicast(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unicasts = append(r.unicasts, sentEvent{Event: event, Data: data})
}

func (r *recorder) switchTo(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switches = append(r.switches, [2]string{from, to})
}

func (r *recorder) roomEvents(event string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, e := range r.room {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) countRoomEvents(event string) int {
	return len(r.roomEvents(event))
}

// lastBotMessage returns the most recent bot-authored message seen in any
// room broadcast, or nil.
func (r *recorder) lastBotMessage() *models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.room) - 1; i >= 0; i-- {
		switch msg := r.room[i].Data.(type) {
		case models.ChatMessage:
			if msg.Sender.IsBot {
				out := msg
				return &out
			}
		case *models.ChatMessage:
			if msg.Sender.IsBot {
				out := *msg
				return &out
			}
		}
	}
	return nil
}

func newTestSession(t *testing.T) (*session, *recorder) {
	t.Helper()

	conf := &config.Config{}
	conf.Store.DataDir = t.TempDir()
	conf.Store.FileName = "chat-db.json"
	conf.Chat.DefaultRoomID = "global"
	conf.Chat.MaxHistory = 50

	engine := bot.NewWithRand(0, 0, rand.New(zeroSource{}))
	rooms := chat.NewRooms(conf, store.New(conf), engine)

	rec := &recorder{}
	sess := newSession(rooms, engine, rec, rec.unicast, rec.switchTo, NewValidator(), "global")
	return sess, rec
}

func mustFrame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	raw, err := encodeFrame(event, payload)
	require.NoError(t, err)
	return raw
}

func join(t *testing.T, sess *session, roomID string, user models.User) {
	t.Helper()
	sess.handleFrame(mustFrame(t, models.EventJoinRoom, models.JoinRoomPayload{RoomID: roomID, User: &user}))
}

func send(t *testing.T, sess *session, id, content string) {
	t.Helper()
	sess.handleFrame(mustFrame(t, models.EventSendMessage, models.SendMessagePayload{
		Message: &models.ChatMessage{ID: id, Content: content, Type: models.MessageTypeText},
	}))
}

// waitBotTyping waits until the given number of typing on/off pairs has been
// broadcast, which marks the delivery goroutines reaching their final stretch.
func waitBotTyping(t *testing.T, rec *recorder, pairs int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.countRoomEvents(models.EventBotTyping) >= pairs*2
	}, time.Second, time.Millisecond)
}

// waitNewMessages waits until at least n new_message broadcasts were seen,
// covering the asynchronous bot replies.
func waitNewMessages(t *testing.T, rec *recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.countRoomEvents(models.EventNewMessage) >= n
	}, time.Second, time.Millisecond)
}

func TestHandleJoin(t *testing.T) {
	t.Parallel()

	t.Run("binds identity, switches room, unicasts history", func(t *testing.T) {
		sess, rec := newTestSession(t)

		sess.rooms.Get("room-1").Append(models.ChatMessage{
			ID: "m1", Sender: models.User{ID: "u9"}, Content: "earlier", Timestamp: 1, Type: models.MessageTypeText,
		})

		join(t, sess, "room-1", models.User{ID: "u1", Username: "Ofir"})

		require.NotNil(t, sess.user)
		assert.Equal(t, "u1", sess.user.ID)
		assert.Equal(t, "room-1", sess.roomID)
		assert.Equal(t, [][2]string{{"global", "room-1"}}, rec.switches)

		require.Len(t, rec.unicasts, 1)
		assert.Equal(t, models.EventRoomHistory, rec.unicasts[0].Event)
		history := rec.unicasts[0].Data.(models.RoomHistoryPayload)
		assert.Equal(t, "room-1", history.RoomID)
		require.Len(t, history.Messages, 1)
		assert.Equal(t, "m1", history.Messages[0].ID)

		// History is unicast, never broadcast.
		assert.Empty(t, rec.room)
	})

	t.Run("blank room id falls back to the current room", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "   ", models.User{ID: "u1"})
		assert.Equal(t, "global", sess.roomID)
		assert.Equal(t, [][2]string{{"global", "global"}}, rec.switches)
	})

	t.Run("missing user still switches rooms without binding", func(t *testing.T) {
		sess, _ := newTestSession(t)
		sess.handleFrame(mustFrame(t, models.EventJoinRoom, models.JoinRoomPayload{RoomID: "room-2"}))
		assert.Nil(t, sess.user)
		assert.Equal(t, "room-2", sess.roomID)
	})
}

func TestHandleSend(t *testing.T) {
	t.Parallel()

	t.Run("stamps the connection-bound user over the payload sender", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1", Username: "Ofir"})

		sess.handleFrame(mustFrame(t, models.EventSendMessage, models.SendMessagePayload{
			Message: &models.ChatMessage{
				ID:      "m1",
				Sender:  models.User{ID: "intruder", Username: "Mallory"},
				Content: "hello",
			},
		}))

		events := rec.roomEvents(models.EventNewMessage)
		require.NotEmpty(t, events)
		msg := events[0].Data.(models.ChatMessage)
		assert.Equal(t, "u1", msg.Sender.ID)
		assert.Equal(t, "hello", msg.Content)

		stored := sess.rooms.Get("global").List()
		require.NotEmpty(t, stored)
		assert.Equal(t, "u1", stored[0].Sender.ID)
	})

	t.Run("assigns id and timestamp when omitted", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})

		send(t, sess, "", "no id supplied")

		events := rec.roomEvents(models.EventNewMessage)
		require.NotEmpty(t, events)
		msg := events[0].Data.(models.ChatMessage)
		assert.NotEmpty(t, msg.ID)
		assert.NotZero(t, msg.Timestamp)
	})

	t.Run("drops blank content and unbound anonymous sends", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})

		send(t, sess, "m1", "   ")
		assert.Empty(t, rec.room)

		unbound, rec2 := newTestSession(t)
		send(t, unbound, "m2", "hello")
		assert.Empty(t, rec2.room)
		assert.Empty(t, unbound.rooms.Get("global").List())
	})

	t.Run("drops malformed payloads", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})

		sess.handleFrame([]byte(`{"event":"send_message","data":{"roomId":"global"}}`))
		sess.handleFrame([]byte(`{"event":"send_message","data":{"message":{"content":42}}}`))
		sess.handleFrame([]byte(`not json at all`))
		assert.Empty(t, rec.room)
	})
}

func TestHandleEdit(t *testing.T) {
	t.Parallel()

	t.Run("author edit broadcasts message_updated", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})
		send(t, sess, "m1", "no question mark")
		waitBotTyping(t, rec, 1)

		sess.handleFrame(mustFrame(t, models.EventEditMessage, models.EditMessagePayload{
			MessageID: "m1", Content: "still no question mark",
		}))

		updates := rec.roomEvents(models.EventMessageUpdated)
		require.NotEmpty(t, updates)
		msg := updates[0].Data.(*models.ChatMessage)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "still no question mark", msg.Content)
	})

	t.Run("foreign editor is a silent no-op", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})
		send(t, sess, "m1", "original text")
		waitBotTyping(t, rec, 1)
		before := rec.countRoomEvents(models.EventMessageUpdated)

		join(t, sess, "global", models.User{ID: "u2"})
		sess.handleFrame(mustFrame(t, models.EventEditMessage, models.EditMessagePayload{
			MessageID: "m1", Content: "hijacked",
		}))

		assert.Equal(t, before, rec.countRoomEvents(models.EventMessageUpdated))
		assert.Equal(t, "original text", sess.rooms.Get("global").List()[0].Content)
	})
}

func TestHandleToggleReaction(t *testing.T) {
	t.Parallel()

	t.Run("valid toggle broadcasts and never wakes the bot", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})
		send(t, sess, "m1", "react to this")
		waitBotTyping(t, rec, 1)
		typingBefore := rec.countRoomEvents(models.EventBotTyping)

		sess.handleFrame(mustFrame(t, models.EventToggleReaction, models.ToggleReactionPayload{
			MessageID: "m1", Reaction: "like",
		}))

		updates := rec.roomEvents(models.EventMessageUpdated)
		require.NotEmpty(t, updates)
		msg := updates[len(updates)-1].Data.(*models.ChatMessage)
		assert.Equal(t, []string{"u1"}, msg.Reactions[models.ReactionLike])
		assert.Equal(t, typingBefore, rec.countRoomEvents(models.EventBotTyping))
	})

	t.Run("unknown reaction kind is dropped", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})
		send(t, sess, "m1", "react to this")
		waitBotTyping(t, rec, 1)
		before := rec.countRoomEvents(models.EventMessageUpdated)

		sess.handleFrame(mustFrame(t, models.EventToggleReaction, models.ToggleReactionPayload{
			MessageID: "m1", Reaction: "thumbsdown",
		}))
		assert.Equal(t, before, rec.countRoomEvents(models.EventMessageUpdated))
	})
}

func TestBotPipeline(t *testing.T) {
	t.Parallel()

	t.Run("teach, recall, and edited answer", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})

		// Unknown question: the bot asks to be taught.
		send(t, sess, "q1", "What is this?")
		waitBotTyping(t, rec, 1)
		waitNewMessages(t, rec, 2)

		typings := rec.roomEvents(models.EventBotTyping)
		require.GreaterOrEqual(t, len(typings), 2)
		assert.True(t, typings[0].Data.(models.BotTypingPayload).IsTyping)
		assert.False(t, typings[1].Data.(models.BotTypingPayload).IsTyping)

		// The answer: the bot confirms it saved the pair.
		send(t, sess, "a1", "42")
		waitNewMessages(t, rec, 4)

		saved := rec.lastBotMessage()
		require.NotNil(t, saved)
		assert.Contains(t, saved.Content, `Q: "What is this?" A: "42"`)

		// Asking again: remembered, not re-asked.
		send(t, sess, "q2", "What is this?")
		waitNewMessages(t, rec, 6)

		remembered := rec.lastBotMessage()
		require.NotNil(t, remembered)
		assert.Contains(t, remembered.Content, `The answer is: "42"`)

		// Editing the answer message refreshes the memory.
		sess.handleFrame(mustFrame(t, models.EventEditMessage, models.EditMessagePayload{
			MessageID: "a1", Content: "43",
		}))
		waitBotTyping(t, rec, 4)

		send(t, sess, "q3", "What is this?")
		waitNewMessages(t, rec, 8)
		require.Eventually(t, func() bool {
			last := rec.lastBotMessage()
			return last != nil && strings.Contains(last.Content, `The answer is: "43"`)
		}, time.Second, time.Millisecond)
	})

	t.Run("edited question updates the same bot bubble", func(t *testing.T) {
		sess, rec := newTestSession(t)
		join(t, sess, "global", models.User{ID: "u1"})

		send(t, sess, "q1", "First question?")
		waitBotTyping(t, rec, 1)
		waitNewMessages(t, rec, 2)

		firstReply := rec.lastBotMessage()
		require.NotNil(t, firstReply)
		newMessagesBefore := rec.countRoomEvents(models.EventNewMessage)

		// Rewording the question reuses the reply linked to the same trigger,
		// so the bot bubble is updated in place instead of duplicated.
		sess.handleFrame(mustFrame(t, models.EventEditMessage, models.EditMessagePayload{
			MessageID: "q1", Content: "First question, reworded?",
		}))
		waitBotTyping(t, rec, 2)
		require.Eventually(t, func() bool {
			for _, e := range rec.roomEvents(models.EventMessageUpdated) {
				if msg, ok := e.Data.(models.ChatMessage); ok && msg.ID == firstReply.ID {
					return true
				}
			}
			return false
		}, time.Second, time.Millisecond)

		assert.Equal(t, newMessagesBefore, rec.countRoomEvents(models.EventNewMessage))
	})
}
