package bot

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ofirdahan/poalim-chat/internal/config"
	"github.com/ofirdahan/poalim-chat/internal/models"
)

// Action is what the engine wants said in a room, plus an advisory typing
// delay the caller honors before delivering it.
type Action struct {
	Content string
	Typing  time.Duration
}

// roomMemory holds one room's learned state. qaByKey and the two reverse
// indexes are mutated together as a single unit: every entry reachable from
// qaByKey is reachable from both indexes and vice versa.
type roomMemory struct {
	pending       *models.BotPending
	qaByKey       map[string]models.BotQaEntry
	keyByQuestion map[string]string // questionMessageId -> key
	keyByAnswer   map[string]string // answerMessageId -> key
}

func newRoomMemory() *roomMemory {
	return &roomMemory{
		qaByKey:       map[string]models.BotQaEntry{},
		keyByQuestion: map[string]string{},
		keyByAnswer:   map[string]string{},
	}
}

// Engine is the per-room Q&A learning state machine. A room is Idle when no
// question is pending and AwaitingAnswer while one open question waits for a
// human-supplied answer.
type Engine struct {
	mu     sync.Mutex
	rooms  map[string]*roomMemory
	rnd    *rand.Rand
	base   time.Duration
	jitter time.Duration
	nowMs  func() int64
}

func New(conf *config.Config) *Engine {
	seed := conf.Bot.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewWithRand(conf.Bot.TypingBase, conf.Bot.TypingJitter, rand.New(rand.NewSource(seed)))
}

// NewWithRand builds an engine with an explicit randomness source so callers
// can make line selection and typing delays deterministic.
func NewWithRand(base, jitter time.Duration, rnd *rand.Rand) *Engine {
	return &Engine{
		rooms:  map[string]*roomMemory{},
		rnd:    rnd,
		base:   base,
		jitter: jitter,
		nowMs:  models.NowMillis,
	}
}

// OnUserMessage advances the room state machine for a freshly appended
// message and returns the bot's reaction, or nil when the bot stays silent.
func (e *Engine) OnUserMessage(roomID string, msg models.ChatMessage) *Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onUserMessage(roomID, msg)
}

func (e *Engine) onUserMessage(roomID string, msg models.ChatMessage) *Action {
	if msg.Sender.IsBot {
		return nil
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}

	mem := e.memory(roomID)

	if mem.pending != nil {
		if !isQuestion(content) {
			// The non-question message answers the pending question.
			entry := models.BotQaEntry{
				Key:               mem.pending.Key,
				Question:          mem.pending.Question,
				Answer:            content,
				QuestionMessageID: mem.pending.QuestionMessageID,
				AnswerMessageID:   msg.ID,
				UpdatedAt:         e.nowMs(),
			}
			mem.store(entry)
			mem.pending = nil
			return e.action(qaLine(e.pick(savedPrefixes), entry.Question, entry.Answer))
		}
		// Another question before an answer arrived: abandon the pending one.
		mem.pending = nil
	}

	if !isQuestion(content) {
		return e.action(e.pick(missingQuestionMarkLines))
	}

	key := normalizeQuestion(content)
	if entry, ok := mem.qaByKey[key]; ok {
		return e.action(rememberedLine(e.pick(rememberedPrefixes), entry.Answer))
	}

	mem.pending = &models.BotPending{
		Key:               key,
		Question:          content,
		QuestionMessageID: msg.ID,
	}
	return e.action(e.pick(askForAnswerLines))
}

// OnMessageEdited resolves the edited message against the learned memory
// before falling back to OnUserMessage semantics: edits to a learned answer
// refresh the stored answer, edits to a learned question re-key the entry.
func (e *Engine) OnMessageEdited(roomID string, msg models.ChatMessage) *Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.Sender.IsBot {
		return nil
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}

	mem := e.memory(roomID)

	if key, ok := mem.keyByAnswer[msg.ID]; ok {
		entry := mem.qaByKey[key]
		entry.Answer = content
		entry.UpdatedAt = e.nowMs()
		mem.qaByKey[key] = entry
		return e.action(qaLine(e.pick(updatedPrefixes), entry.Question, entry.Answer))
	}

	if oldKey, ok := mem.keyByQuestion[msg.ID]; ok {
		entry := mem.qaByKey[oldKey]
		entry.Key = normalizeQuestion(content)
		entry.Question = content
		entry.UpdatedAt = e.nowMs()
		if entry.Key != oldKey {
			mem.remove(oldKey)
		}
		mem.store(entry)
		if isQuestion(content) {
			return e.action(rememberedLine(e.pick(rememberedPrefixes), entry.Answer))
		}
		return nil
	}

	return e.onUserMessage(roomID, msg)
}

// HydrateRoom rebuilds a room's memory from a persisted snapshot, dropping
// malformed entries silently and rebuilding both reverse indexes. A nil
// snapshot resets the room.
func (e *Engine) HydrateRoom(roomID string, snap *models.PersistedBotMemory) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mem := newRoomMemory()
	if snap != nil {
		if p := snap.Pending; p != nil && p.Key != "" && p.Question != "" && p.QuestionMessageID != "" {
			pending := *p
			mem.pending = &pending
		}
		for _, entry := range snap.Qa {
			if !validEntry(entry) {
				continue
			}
			mem.store(entry)
		}
	}
	e.rooms[roomID] = mem
}

// DumpRoom snapshots a room's memory for persistence. Entries are ordered
// by key so the persisted document is deterministic.
func (e *Engine) DumpRoom(roomID string) models.PersistedBotMemory {
	e.mu.Lock()
	defer e.mu.Unlock()

	mem := e.memory(roomID)
	snap := models.PersistedBotMemory{Qa: make([]models.BotQaEntry, 0, len(mem.qaByKey))}
	if mem.pending != nil {
		pending := *mem.pending
		snap.Pending = &pending
	}

	keys := make([]string, 0, len(mem.qaByKey))
	for key := range mem.qaByKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		snap.Qa = append(snap.Qa, mem.qaByKey[key])
	}
	return snap
}

func (e *Engine) memory(roomID string) *roomMemory {
	mem, ok := e.rooms[roomID]
	if !ok {
		mem = newRoomMemory()
		e.rooms[roomID] = mem
	}
	return mem
}

func (e *Engine) action(content string) *Action {
	typing := e.base
	if e.jitter > 0 {
		typing += time.Duration(e.rnd.Int63n(int64(e.jitter) + 1))
	}
	return &Action{Content: content, Typing: typing}
}

func (e *Engine) pick(lines []string) string {
	return lines[e.rnd.Intn(len(lines))]
}

// store inserts or overwrites an entry, evicting whatever previously owned
// its key or message ids so the reverse indexes never go stale.
func (m *roomMemory) store(entry models.BotQaEntry) {
	if old, ok := m.qaByKey[entry.Key]; ok {
		delete(m.keyByQuestion, old.QuestionMessageID)
		delete(m.keyByAnswer, old.AnswerMessageID)
	}
	m.qaByKey[entry.Key] = entry
	m.keyByQuestion[entry.QuestionMessageID] = entry.Key
	m.keyByAnswer[entry.AnswerMessageID] = entry.Key
}

func (m *roomMemory) remove(key string) {
	if old, ok := m.qaByKey[key]; ok {
		delete(m.keyByQuestion, old.QuestionMessageID)
		delete(m.keyByAnswer, old.AnswerMessageID)
		delete(m.qaByKey, key)
	}
}

func validEntry(entry models.BotQaEntry) bool {
	return entry.Key != "" &&
		entry.Question != "" &&
		entry.Answer != "" &&
		entry.QuestionMessageID != "" &&
		entry.AnswerMessageID != ""
}

func isQuestion(trimmed string) bool {
	return strings.HasSuffix(trimmed, "?")
}

// normalizeQuestion turns question text into its lookup key: lowercase,
// collapsed whitespace, trailing punctuation folded into a single "?".
func normalizeQuestion(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	collapsed := strings.Join(strings.Fields(lowered), " ")
	trimmed := strings.TrimRight(collapsed, "?!.,;:")
	return trimmed + "?"
}
