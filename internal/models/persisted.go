package models

// BotPending is the one open question in a room awaiting a human answer.
type BotPending struct {
	Key               string `json:"key"`
	Question          string `json:"question"`
	QuestionMessageID string `json:"questionMessageId"`
}

// BotQaEntry is one learned question/answer pair with provenance: the
// message ids that taught the question and the answer.
type BotQaEntry struct {
	Key               string `json:"key"`
	Question          string `json:"question"`
	Answer            string `json:"answer"`
	QuestionMessageID string `json:"questionMessageId"`
	AnswerMessageID   string `json:"answerMessageId"`
	UpdatedAt         int64  `json:"updatedAt"`
}

// PersistedBotMemory is the serialization boundary of a room's bot memory.
type PersistedBotMemory struct {
	Pending *BotPending  `json:"pending"`
	Qa      []BotQaEntry `json:"qa"`
}

// PersistedRoom bundles everything durable about one room.
type PersistedRoom struct {
	Messages  []ChatMessage      `json:"messages"`
	BotMemory PersistedBotMemory `json:"botMemory"`

	// userMessageId -> botMessageId
	BotReplies map[string]string `json:"botReplies"`
}

// PersistedDocument is the sole unit of durability, rewritten in full on
// every mutation.
type PersistedDocument struct {
	Rooms map[string]PersistedRoom `json:"rooms"`
}

func EmptyDocument() *PersistedDocument {
	return &PersistedDocument{Rooms: map[string]PersistedRoom{}}
}
