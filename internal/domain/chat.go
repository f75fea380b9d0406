package domain

import "time"

// ChatMaxMessageLength bounds chat text length.
const ChatMaxMessageLength = 500

// ChatBufferCapacity is the rolling buffer size per room.
const ChatBufferCapacity = 300

// ChatMessage is one line of room chat.
type ChatMessage struct {
	ID          uint64    `json:"id"`
	ClientID    ClientID  `json:"clientId"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	CountryCode string    `json:"countryCode,omitempty"`
}

// ChatLog is a fixed-capacity, insertion-ordered buffer of
// ChatMessages with a per-room monotonic id counter. Overwrites the
// oldest message once full, specialized from a generic ring buffer to
// also own id assignment.
type ChatLog struct {
	messages []ChatMessage
	nextID   uint64
}

// NewChatLog creates an empty chat log at full capacity.
func NewChatLog() *ChatLog {
	return &ChatLog{messages: make([]ChatMessage, 0, ChatBufferCapacity), nextID: 1}
}

// Append assigns the next monotonic id to msg and appends it,
// evicting the oldest message if the buffer is full. Returns the
// stored message (with its assigned ID).
func (l *ChatLog) Append(msg ChatMessage) ChatMessage {
	msg.ID = l.nextID
	l.nextID++
	if len(l.messages) >= ChatBufferCapacity {
		l.messages = l.messages[1:]
	}
	l.messages = append(l.messages, msg)
	return msg
}

// All returns a copy of every message currently retained, oldest
// first.
func (l *ChatLog) All() []ChatMessage {
	out := make([]ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// NewestID returns the id of the most recently appended message, or 0
// if the log is empty.
func (l *ChatLog) NewestID() uint64 {
	if len(l.messages) == 0 {
		return 0
	}
	return l.messages[len(l.messages)-1].ID
}

// Len reports how many messages are currently retained (<= ChatBufferCapacity).
func (l *ChatLog) Len() int { return len(l.messages) }

// Restore replaces the log's contents and counter from a snapshot,
// rebuilding chat history without re-running Append's side effects.
func (l *ChatLog) Restore(messages []ChatMessage, nextID uint64) {
	l.messages = append(l.messages[:0], messages...)
	if nextID == 0 {
		nextID = 1
	}
	l.nextID = nextID
}

// NextID exposes the counter for snapshotting.
func (l *ChatLog) NextID() uint64 { return l.nextID }
