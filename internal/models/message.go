package models

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

type ReactionKey string

const (
	ReactionLike  ReactionKey = "like"
	ReactionHeart ReactionKey = "heart"
	ReactionLaugh ReactionKey = "laugh"
	ReactionWow   ReactionKey = "wow"
	ReactionSad   ReactionKey = "sad"
)

var reactionKeys = map[ReactionKey]struct{}{
	ReactionLike:  {},
	ReactionHeart: {},
	ReactionLaugh: {},
	ReactionWow:   {},
	ReactionSad:   {},
}

// IsReactionKey reports whether value is one of the recognized reaction kinds.
func IsReactionKey(value string) bool {
	_, ok := reactionKeys[ReactionKey(value)]
	return ok
}

// MessageEdit is one entry of a message's append-only edit audit trail,
// capturing the content before the edit was applied.
type MessageEdit struct {
	PreviousContent string `json:"previousContent"`
	EditedAt        int64  `json:"editedAt"`
}

// ChatMessage is a single message in a room log. Timestamps are unix
// milliseconds. An absent reaction key and an empty id list are equivalent:
// both mean "no reaction of that kind".
type ChatMessage struct {
	ID        string                   `json:"id"`
	Sender    User                     `json:"sender"`
	Content   string                   `json:"content"`
	Timestamp int64                    `json:"timestamp"`
	Type      MessageType              `json:"type"`
	EditedAt  *int64                   `json:"editedAt,omitempty"`
	Edits     []MessageEdit            `json:"edits,omitempty"`
	Reactions map[ReactionKey][]string `json:"reactions,omitempty"`
}

// Clone returns a copy with fresh backing for the reactions map, its id
// slices and the edit trail, so mutating the copy never writes into storage
// shared with snapshots handed to other goroutines.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.Reactions != nil {
		out.Reactions = make(map[ReactionKey][]string, len(m.Reactions))
		for key, ids := range m.Reactions {
			out.Reactions[key] = append([]string(nil), ids...)
		}
	}
	if m.Edits != nil {
		out.Edits = append([]MessageEdit(nil), m.Edits...)
	}
	if m.EditedAt != nil {
		at := *m.EditedAt
		out.EditedAt = &at
	}
	return out
}

// NowMillis returns the current time as unix milliseconds, the timestamp
// unit used across the wire protocol and the persisted document.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
