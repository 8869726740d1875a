package models

// Wire event names, room-scoped unless noted.
const (
	EventJoinRoom       = "join_room"
	EventRoomHistory    = "room_history" // unicast
	EventSendMessage    = "send_message"
	EventNewMessage     = "new_message"
	EventEditMessage    = "edit_message"
	EventMessageUpdated = "message_updated"
	EventToggleReaction = "toggle_reaction"
	EventBotTyping      = "bot_typing"
)

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	User   *User  `json:"user"`
}

type RoomHistoryPayload struct {
	RoomID   string        `json:"roomId"`
	Messages []ChatMessage `json:"messages"`
}

type SendMessagePayload struct {
	RoomID  string       `json:"roomId"`
	Message *ChatMessage `json:"message" validate:"required"`
}

type EditMessagePayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId" validate:"required"`
	Content   string `json:"content"`
}

type ToggleReactionPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId" validate:"required"`
	Reaction  string `json:"reaction" validate:"required"`
}

type BotTypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}
