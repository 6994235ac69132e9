// Package session holds the active document, active conversation and message
// log shared by every panel of one UI tree.
package session

import (
	"slices"
	"sync"

	"github.com/raphaelgruber/docchat/internal/models"
)

// State is an immutable snapshot of the store.
type State struct {
	Version        uint64
	Document       *models.DocumentHandle
	ConversationID string
	Conversation   models.ConversationState
	Messages       []models.Message
	Responding     bool
}

// SessionID returns the retrieval-session id of the active document, or "".
func (s State) SessionID() string {
	if s.Document == nil {
		return ""
	}
	return s.Document.SessionID
}

// LastMessage returns the trailing message of the log.
func (s State) LastMessage() (models.Message, bool) {
	if len(s.Messages) == 0 {
		return models.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Subscriber is called with the new snapshot after every mutation.
type Subscriber func(State)

// Store is the single owner of active-session state. Every mutation replaces
// one slice of state in one step under the lock; subscribers are called after
// the lock is released. Mutations never fail.
type Store struct {
	mu    sync.RWMutex
	state State

	subMu  sync.RWMutex
	nextID uint64
	subs   map[uint64]Subscriber
}

// NewStore creates an empty store: no document, no conversation, no messages.
func NewStore() *Store {
	return &Store{subs: make(map[uint64]Subscriber)}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() State {
	st := s.state
	if st.Document != nil {
		doc := *st.Document
		st.Document = &doc
	}
	st.Messages = slices.Clone(st.Messages)
	return st
}

// Subscribe registers fn for change notifications and returns its
// unsubscribe function. Panels subscribe on mount and unsubscribe on teardown.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// mutate applies fn under the write lock and publishes the result.
// fn reports whether it changed anything.
func (s *Store) mutate(fn func(st *State) bool) bool {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	s.state.Version++
	snap := s.copyLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

func (s *Store) publish(snap State) {
	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// SetDocumentHandle replaces the active document. nil clears it.
func (s *Store) SetDocumentHandle(doc *models.DocumentHandle) {
	s.mutate(func(st *State) bool {
		st.Document = cloneHandle(doc)
		return true
	})
}

// SetActiveConversationID replaces the active conversation id. "" clears it.
func (s *Store) SetActiveConversationID(id string) {
	s.mutate(func(st *State) bool {
		st.ConversationID = id
		st.Conversation = stateFor(id)
		return true
	})
}

// SetMessages replaces the whole message log.
func (s *Store) SetMessages(log []models.Message) {
	s.mutate(func(st *State) bool {
		st.Messages = slices.Clone(log)
		return true
	})
}

// UpdateMessages replaces the log with fn applied to a copy of the current one.
func (s *Store) UpdateMessages(fn func([]models.Message) []models.Message) {
	s.mutate(func(st *State) bool {
		st.Messages = fn(slices.Clone(st.Messages))
		return true
	})
}

// AppendMessage adds msg to the end of the log.
func (s *Store) AppendMessage(msg models.Message) {
	s.mutate(func(st *State) bool {
		st.Messages = append(slices.Clone(st.Messages), msg)
		return true
	})
}

// AppendMessageFor adds msg only while conversationID is active and bound to
// sessionID. A reply that arrives after the user switched conversations is
// dropped instead of landing in the new log.
func (s *Store) AppendMessageFor(conversationID, sessionID string, msg models.Message) bool {
	return s.mutate(func(st *State) bool {
		if st.ConversationID != conversationID || st.SessionID() != sessionID {
			return false
		}
		st.Messages = append(slices.Clone(st.Messages), msg)
		return true
	})
}

// UpdateMessageByID applies patch to the message with the given id.
// Returns false when no such message exists.
func (s *Store) UpdateMessageByID(id string, patch models.MessagePatch) bool {
	return s.mutate(func(st *State) bool {
		i := slices.IndexFunc(st.Messages, func(m models.Message) bool { return m.ID == id })
		if i < 0 {
			return false
		}
		msgs := slices.Clone(st.Messages)
		msgs[i] = patch.Apply(msgs[i])
		st.Messages = msgs
		return true
	})
}

// UpdateLastMessage applies patch only if the trailing message has the given
// id. Reveals use it so a message that is no longer last is never rewritten.
func (s *Store) UpdateLastMessage(id string, patch models.MessagePatch) bool {
	return s.mutate(func(st *State) bool {
		n := len(st.Messages)
		if n == 0 || st.Messages[n-1].ID != id {
			return false
		}
		msgs := slices.Clone(st.Messages)
		msgs[n-1] = patch.Apply(msgs[n-1])
		st.Messages = msgs
		return true
	})
}

// Replace swaps document, active conversation and log together.
func (s *Store) Replace(doc *models.DocumentHandle, conversationID string, log []models.Message) {
	s.mutate(func(st *State) bool {
		st.Document = cloneHandle(doc)
		st.ConversationID = conversationID
		st.Conversation = stateFor(conversationID)
		st.Messages = slices.Clone(log)
		return true
	})
}

// ReplaceIf is Replace guarded by cond, which sees the current state and runs
// under the store lock.
func (s *Store) ReplaceIf(cond func(State) bool, doc *models.DocumentHandle, conversationID string, log []models.Message) bool {
	return s.mutate(func(st *State) bool {
		if !cond(s.copyLocked()) {
			return false
		}
		st.Document = cloneHandle(doc)
		st.ConversationID = conversationID
		st.Conversation = stateFor(conversationID)
		st.Messages = slices.Clone(log)
		return true
	})
}

// BindDocument installs a freshly uploaded document together with its reset
// log. conversationID is applied only when non-empty.
func (s *Store) BindDocument(doc models.DocumentHandle, conversationID string, log []models.Message) {
	s.mutate(func(st *State) bool {
		st.Document = cloneHandle(&doc)
		if conversationID != "" {
			st.ConversationID = conversationID
			st.Conversation = models.ConversationReady
		}
		st.Messages = slices.Clone(log)
		return true
	})
}

// ReplaceMessagesFor replaces the log only while conversationID is active
// and bound to sessionID. Background reloads use it so a later selection or
// upload is never overwritten.
func (s *Store) ReplaceMessagesFor(conversationID, sessionID string, log []models.Message) bool {
	return s.mutate(func(st *State) bool {
		if st.ConversationID != conversationID || st.SessionID() != sessionID {
			return false
		}
		st.Messages = slices.Clone(log)
		return true
	})
}

// ResetIfActive clears the store when conversationID is the active one.
func (s *Store) ResetIfActive(conversationID string) bool {
	return s.mutate(func(st *State) bool {
		if conversationID == "" || st.ConversationID != conversationID {
			return false
		}
		st.Document = nil
		st.ConversationID = ""
		st.Conversation = models.NoConversation
		st.Messages = nil
		return true
	})
}

// Reset clears document, conversation and log.
func (s *Store) Reset() {
	s.Replace(nil, "", nil)
}

// SetResponding toggles the "response in progress" flag.
func (s *Store) SetResponding(v bool) {
	s.mutate(func(st *State) bool {
		if st.Responding == v {
			return false
		}
		st.Responding = v
		return true
	})
}

// BeginConversationCreation moves NoConversation to ConversationPendingCreation.
// It returns false when a conversation is already active or being created.
func (s *Store) BeginConversationCreation() bool {
	return s.mutate(func(st *State) bool {
		if st.Conversation != models.NoConversation {
			return false
		}
		st.Conversation = models.ConversationPendingCreation
		return true
	})
}

// CompleteConversationCreation activates id after a successful create.
func (s *Store) CompleteConversationCreation(id string) {
	s.mutate(func(st *State) bool {
		st.ConversationID = id
		st.Conversation = stateFor(id)
		return true
	})
}

// FailConversationCreation returns a pending creation to NoConversation.
func (s *Store) FailConversationCreation() {
	s.mutate(func(st *State) bool {
		if st.Conversation != models.ConversationPendingCreation {
			return false
		}
		st.Conversation = models.NoConversation
		return true
	})
}

func stateFor(id string) models.ConversationState {
	if id == "" {
		return models.NoConversation
	}
	return models.ConversationReady
}

func cloneHandle(doc *models.DocumentHandle) *models.DocumentHandle {
	if doc == nil {
		return nil
	}
	d := *doc
	return &d
}
