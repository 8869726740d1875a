package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/google/uuid"
	"github.com/ofirdahan/poalim-chat/internal/bot"
	"github.com/ofirdahan/poalim-chat/internal/chat"
	"github.com/ofirdahan/poalim-chat/internal/models"
)

// roomBroadcaster fans an event out to every member of a room.
type roomBroadcaster interface {
	ToRoom(roomID, event string, data any)
}

// session is the per-connection protocol handler. It owns the connection's
// room binding and identity, and applies the silent-drop contract: malformed
// or unauthorized input is a no-op and no error ever reaches a client.
type session struct {
	rooms    *chat.Rooms
	engine   *bot.Engine
	out      roomBroadcaster
	unicast  func(event string, data any)
	switchTo func(from, to string)
	validate *Validator
	log      *logger.Logger

	roomID string
	user   *models.User
}

func newSession(
	rooms *chat.Rooms,
	engine *bot.Engine,
	out roomBroadcaster,
	unicast func(event string, data any),
	switchTo func(from, to string),
	validate *Validator,
	defaultRoomID string,
) *session {
	return &session{
		rooms:    rooms,
		engine:   engine,
		out:      out,
		unicast:  unicast,
		switchTo: switchTo,
		validate: validate,
		log:      logger.MustNamed("session"),
		roomID:   defaultRoomID,
	}
}

func (s *session) handleFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Event {
	case models.EventJoinRoom:
		var payload models.JoinRoomPayload
		if json.Unmarshal(frame.Data, &payload) != nil {
			return
		}
		s.handleJoin(payload)
	case models.EventSendMessage:
		var payload models.SendMessagePayload
		if json.Unmarshal(frame.Data, &payload) != nil || s.validate.Validate(payload) != nil {
			return
		}
		s.handleSend(payload)
	case models.EventEditMessage:
		var payload models.EditMessagePayload
		if json.Unmarshal(frame.Data, &payload) != nil || s.validate.Validate(payload) != nil {
			return
		}
		s.handleEdit(payload)
	case models.EventToggleReaction:
		var payload models.ToggleReactionPayload
		if json.Unmarshal(frame.Data, &payload) != nil || s.validate.Validate(payload) != nil {
			return
		}
		s.handleToggleReaction(payload)
	}
}

// handleJoin binds the presented identity to the connection (trusted from
// here on), moves the channel membership and unicasts the room history.
func (s *session) handleJoin(payload models.JoinRoomPayload) {
	roomID := normalizeRoomID(payload.RoomID, s.roomID)

	if payload.User != nil && payload.User.ID != "" {
		user := *payload.User
		s.user = &user
	}

	s.switchTo(s.roomID, roomID)
	s.roomID = roomID

	s.unicast(models.EventRoomHistory, models.RoomHistoryPayload{
		RoomID:   roomID,
		Messages: s.rooms.Get(roomID).List(),
	})
}

func (s *session) handleSend(payload models.SendMessagePayload) {
	roomID := normalizeRoomID(payload.RoomID, s.roomID)

	incoming := payload.Message
	if strings.TrimSpace(incoming.Content) == "" {
		return
	}
	if incoming.Sender.ID == "" && s.user == nil {
		return
	}

	msg := *incoming
	// The payload sender is advisory only: a joined connection always stamps
	// its bound identity, which is what makes spoofing a no-op.
	if s.user != nil && !s.user.IsBot {
		msg.Sender = *s.user
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = models.NowMillis()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	room := s.rooms.Get(roomID)
	room.Append(msg)
	s.out.ToRoom(roomID, models.EventNewMessage, msg)

	action := s.engine.OnUserMessage(roomID, msg)
	room.Persist()
	s.runBotAction(room, msg.ID, action)
}

func (s *session) handleEdit(payload models.EditMessagePayload) {
	roomID := normalizeRoomID(payload.RoomID, s.roomID)

	room := s.rooms.Get(roomID)
	updated := room.EditMessage(s.user, payload.MessageID, payload.Content)
	if updated == nil {
		return
	}
	s.out.ToRoom(roomID, models.EventMessageUpdated, updated)

	action := s.engine.OnMessageEdited(roomID, *updated)
	room.Persist()
	s.runBotAction(room, updated.ID, action)
}

func (s *session) handleToggleReaction(payload models.ToggleReactionPayload) {
	if !models.IsReactionKey(payload.Reaction) {
		return
	}
	roomID := normalizeRoomID(payload.RoomID, s.roomID)

	room := s.rooms.Get(roomID)
	updated := room.ToggleReaction(s.user, payload.MessageID, models.ReactionKey(payload.Reaction))
	if updated == nil {
		return
	}
	s.out.ToRoom(roomID, models.EventMessageUpdated, updated)
}

// runBotAction brackets the reply with typing indicators and delivers it
// after the action's advisory delay. The timer runs on its own goroutine so
// the connection keeps processing events, and it is never cancelled: once
// triggered, a reply is always delivered and persisted.
func (s *session) runBotAction(room *chat.Room, triggerMessageID string, action *bot.Action) {
	if action == nil {
		return
	}
	roomID := room.ID()

	s.out.ToRoom(roomID, models.EventBotTyping, models.BotTypingPayload{RoomID: roomID, IsTyping: true})

	go func() {
		time.Sleep(action.Typing)
		s.out.ToRoom(roomID, models.EventBotTyping, models.BotTypingPayload{RoomID: roomID, IsTyping: false})

		reply, isNew := room.UpsertBotReply(triggerMessageID, action.Content)
		if isNew {
			s.out.ToRoom(roomID, models.EventNewMessage, reply)
		} else {
			s.out.ToRoom(roomID, models.EventMessageUpdated, reply)
		}
	}()
}

func normalizeRoomID(candidate, fallback string) string {
	if trimmed := strings.TrimSpace(candidate); trimmed != "" {
		return trimmed
	}
	return fallback
}
