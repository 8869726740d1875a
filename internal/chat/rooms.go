package chat

import (
	"sync"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/ofirdahan/poalim-chat/internal/bot"
	"github.com/ofirdahan/poalim-chat/internal/config"
	"github.com/ofirdahan/poalim-chat/internal/models"
	"github.com/ofirdahan/poalim-chat/internal/store"
)

// Rooms is the registry of room aggregates. Rooms are created lazily on
// first reference and never deleted. It owns the persisted document: every
// room mutation rewrites that room's slice of the document and saves it.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	doc    *models.PersistedDocument
	store  store.Store
	engine *bot.Engine
	max    int
	log    *logger.Logger
}

func NewRooms(conf *config.Config, st store.Store, engine *bot.Engine) *Rooms {
	rs := &Rooms{
		rooms:  map[string]*Room{},
		doc:    st.Load(),
		store:  st,
		engine: engine,
		max:    conf.Chat.MaxHistory,
		log:    logger.MustNamed("chat"),
	}

	for roomID, persisted := range rs.doc.Rooms {
		room := rs.newRoom(roomID)
		room.messages = boundMessages(persisted.Messages, rs.max)
		for userMsgID, botMsgID := range persisted.BotReplies {
			if userMsgID != "" && botMsgID != "" {
				room.replies[userMsgID] = botMsgID
			}
		}
		memory := persisted.BotMemory
		engine.HydrateRoom(roomID, &memory)
		rs.rooms[roomID] = room
		rs.log.Infow("room hydrated", "room_id", roomID, "messages", len(room.messages), "reply_links", len(room.replies))
	}
	return rs
}

// Get returns the room aggregate for id, creating it on first reference.
func (rs *Rooms) Get(roomID string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	room, ok := rs.rooms[roomID]
	if !ok {
		room = rs.newRoom(roomID)
		rs.rooms[roomID] = room
	}
	return room
}

func (rs *Rooms) newRoom(roomID string) *Room {
	return &Room{
		id:      roomID,
		owner:   rs,
		replies: map[string]string{},
	}
}

// persistRoom rewrites one room's section of the document and saves the
// whole document. Reply links whose messages fell out of the bounded log
// are pruned here so the persisted table cannot grow unbounded. Called with
// the room's mutex held; the registry mutex serializes document access.
func (rs *Rooms) persistRoom(room *Room) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	live := make(map[string]struct{}, len(room.messages))
	for _, msg := range room.messages {
		live[msg.ID] = struct{}{}
	}
	for userMsgID, botMsgID := range room.replies {
		if _, ok := live[userMsgID]; !ok {
			delete(room.replies, userMsgID)
			continue
		}
		if _, ok := live[botMsgID]; !ok {
			delete(room.replies, userMsgID)
		}
	}

	messages := make([]models.ChatMessage, len(room.messages))
	copy(messages, room.messages)
	replies := make(map[string]string, len(room.replies))
	for k, v := range room.replies {
		replies[k] = v
	}

	rs.doc.Rooms[room.id] = models.PersistedRoom{
		Messages:   messages,
		BotMemory:  rs.engine.DumpRoom(room.id),
		BotReplies: replies,
	}

	// A failed write must not abort the in-memory mutation or the pending
	// broadcast; the room stays live and consistent in memory.
	if err := rs.store.Save(rs.doc); err != nil {
		rs.log.Errorw("persist room failed", "room_id", room.id, "error", err)
	}
}

func boundMessages(messages []models.ChatMessage, max int) []models.ChatMessage {
	if max > 0 && len(messages) > max {
		messages = messages[len(messages)-max:]
	}
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out
}
