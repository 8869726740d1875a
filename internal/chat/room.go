package chat

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ofirdahan/poalim-chat/internal/models"
)

// Room owns one room's bounded message log and its reply-link table. All
// mutations run under the room mutex and persist before returning, so a
// broadcast built from a returned message always reflects durable state.
type Room struct {
	id       string
	owner    *Rooms
	mu       sync.Mutex
	messages []models.ChatMessage
	replies  map[string]string // userMessageId -> botMessageId
}

func (r *Room) ID() string { return r.id }

// List returns a copy of the log, bounded to the most recent entries.
func (r *Room) List() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ChatMessage, len(r.messages))
	for i, msg := range r.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Append adds a message to the log in arrival order, evicting the oldest
// entries past the bound, and persists the room.
func (r *Room) Append(msg models.ChatMessage) models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(msg)
	r.owner.persistRoom(r)
	return msg
}

// Persist flushes the room (including the bot memory snapshot) without
// mutating the log. Used after engine-only state changes.
func (r *Room) Persist() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner.persistRoom(r)
}

// EditMessage applies a user edit. It is a silent no-op unless the target
// exists, is not bot-authored, belongs to the editor, and the new trimmed
// content is non-empty and different. The previous content goes to the
// append-only audit trail.
func (r *Room) EditMessage(editor *models.User, messageID, content string) *models.ChatMessage {
	if editor == nil || editor.IsBot {
		return nil
	}
	clean := strings.TrimSpace(content)
	if clean == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.replaceLocked(messageID, func(msg *models.ChatMessage) bool {
		if msg.Sender.IsBot || msg.Sender.ID != editor.ID {
			return false
		}
		if strings.TrimSpace(msg.Content) == clean {
			return false
		}
		now := models.NowMillis()
		msg.Edits = append(msg.Edits, models.MessageEdit{
			PreviousContent: msg.Content,
			EditedAt:        now,
		})
		msg.Content = clean
		msg.EditedAt = &now
		return true
	})
}

// ToggleReaction flips membership of the actor's id in the message's
// reaction set for the given kind. An emptied set has its key deleted:
// absent and empty are the same state.
func (r *Room) ToggleReaction(actor *models.User, messageID string, key models.ReactionKey) *models.ChatMessage {
	if actor == nil || actor.IsBot || actor.ID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.replaceLocked(messageID, func(msg *models.ChatMessage) bool {
		ids := msg.Reactions[key]
		found := -1
		for i, id := range ids {
			if id == actor.ID {
				found = i
				break
			}
		}
		if found >= 0 {
			ids = append(ids[:found], ids[found+1:]...)
		} else {
			ids = append(ids, actor.ID)
		}

		if msg.Reactions == nil {
			msg.Reactions = map[models.ReactionKey][]string{}
		}
		if len(ids) == 0 {
			delete(msg.Reactions, key)
		} else {
			msg.Reactions[key] = ids
		}
		return true
	})
}

// UpsertBotReply links the bot's reply to the user message that triggered
// it. When a live link already exists the linked bot message is rewritten in
// place (isNew=false) so repeated edits to a learned question update one bot
// bubble instead of spawning duplicates.
func (r *Room) UpsertBotReply(triggerMessageID, content string) (models.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if botMsgID, ok := r.replies[triggerMessageID]; ok {
		updated := r.replaceLocked(botMsgID, func(msg *models.ChatMessage) bool {
			msg.Content = content
			msg.Timestamp = models.NowMillis()
			msg.EditedAt = nil
			return true
		})
		if updated != nil {
			return *updated, false
		}
	}

	reply := models.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    models.BotUser(),
		Content:   content,
		Timestamp: models.NowMillis(),
		Type:      models.MessageTypeSystem,
	}
	r.replies[triggerMessageID] = reply.ID
	r.appendLocked(reply)
	r.owner.persistRoom(r)
	return reply, true
}

// replaceLocked is the single in-place mutation primitive: look up the
// message, let the updater rewrite it (false aborts without persisting),
// store it back and persist the room. Returns the updated message or nil.
// The updater works on a deep copy, so reaction and edit-trail storage
// already handed out through List or a broadcast is never written to.
func (r *Room) replaceLocked(messageID string, updater func(*models.ChatMessage) bool) *models.ChatMessage {
	idx := r.indexOfLocked(messageID)
	if idx < 0 {
		return nil
	}
	msg := r.messages[idx].Clone()
	if !updater(&msg) {
		return nil
	}
	r.messages[idx] = msg
	r.owner.persistRoom(r)
	updated := msg.Clone()
	return &updated
}

func (r *Room) appendLocked(msg models.ChatMessage) {
	r.messages = append(r.messages, msg)
	if max := r.owner.max; max > 0 && len(r.messages) > max {
		r.messages = r.messages[len(r.messages)-max:]
	}
}

func (r *Room) indexOfLocked(messageID string) int {
	for i, msg := range r.messages {
		if msg.ID == messageID {
			return i
		}
	}
	return -1
}
