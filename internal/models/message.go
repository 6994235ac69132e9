package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
	AuthorSystem    Author = "system"
)

// ParseAuthor maps backend and persisted author labels onto an Author.
// Anything that is not recognisably the user or the system is the assistant.
func ParseAuthor(s string) Author {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "you":
		return AuthorUser
	case "system":
		return AuthorSystem
	default:
		return AuthorAssistant
	}
}

// DisplayName is the label rendered above a message.
func (a Author) DisplayName() string {
	switch a {
	case AuthorUser:
		return "You"
	case AuthorSystem:
		return "System"
	default:
		return "DocChat"
	}
}

// Avatar is the marker rendered beside a message.
func (a Author) Avatar() string {
	switch a {
	case AuthorUser:
		return "●"
	case AuthorAssistant:
		return "⚡"
	default:
		return ""
	}
}

// Source is a citation attached to an answer.
type Source struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         *string `json:"url,omitempty"`
}

// Message is one entry of the in-memory message log.
type Message struct {
	ID        string   `json:"id"`
	Author    Author   `json:"author"`
	Avatar    string   `json:"avatar"`
	Timestamp string   `json:"timestamp"`
	Content   string   `json:"content"`
	Sources   []Source `json:"sources,omitempty"`
}

// NewMessage builds a local message stamped at the given time.
func NewMessage(author Author, content string, at time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Author:    author,
		Avatar:    author.Avatar(),
		Timestamp: FormatTimestamp(at),
		Content:   content,
	}
}

// MessagePatch carries the fields UpdateMessageByID may change.
// Nil fields are left untouched.
type MessagePatch struct {
	Content *string
	Sources []Source
}

// Apply returns a copy of m with the patch applied.
func (p MessagePatch) Apply(m Message) Message {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Sources != nil {
		m.Sources = p.Sources
	}
	return m
}

// MessageRecord is a persisted chat message.
type MessageRecord struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Author       string                 `json:"author"`
	Content      string                 `json:"content"`
	Sources      []Source               `json:"sources,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// FormatMessage converts a persisted message into a log entry. The result is
// indistinguishable from NewMessage with the same author, content and time.
func FormatMessage(r MessageRecord) Message {
	author := ParseAuthor(r.Author)
	id, err := RecordIDString(r.ID)
	if err != nil {
		id = uuid.New().String()
	}
	return Message{
		ID:        id,
		Author:    author,
		Avatar:    author.Avatar(),
		Timestamp: FormatTimestamp(r.CreatedAt),
		Content:   r.Content,
		Sources:   r.Sources,
	}
}

// FormatMessages converts a persisted history in order.
func FormatMessages(records []MessageRecord) []Message {
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, FormatMessage(r))
	}
	return msgs
}
