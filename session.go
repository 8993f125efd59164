package sieve

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session manages conversation state across extraction attempts.
// Its main job here is corrective retries: a failed validation can be
// repaired in a follow-up turn that still carries the original exchange, so
// the model sees what it produced and what was wrong with it.
//
// Sessions are safe for concurrent use by multiple goroutines, though a
// repair flow naturally runs its attempts sequentially.
type Session struct {
	id        string
	messages  []Message
	lastUsage *TokenUsage
	mu        sync.RWMutex
}

// NewSession creates a new conversation session with a unique ID.
//
// Example:
//
//	session := sieve.NewSession()
//	record, err := extractor.Fire(ctx, session, document)
//	var verr *sieve.ValidationError
//	if errors.As(err, &verr) {
//	    record, err = extractor.Repair(ctx, session, document, verr)
//	}
func NewSession() *Session {
	return &Session{
		id:       uuid.New().String(),
		messages: make([]Message, 0),
	}
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Messages returns a copy of all messages in the session.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// Append adds a new message to the session.
// This is called internally after a fully validated extraction, but can be
// used directly for manual context management.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Role: role, Content: content})
}

// Clear removes all messages, starting a fresh conversation in-place.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]Message, 0)
}

// Prune removes the last n message pairs (user + assistant).
// If n would remove more messages than exist, all messages are removed.
// Useful for keeping the context window bounded across many extractions.
func (s *Session) Prune(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		return fmt.Errorf("prune count must be non-negative, got %d", n)
	}

	remove := n * 2
	if remove >= len(s.messages) {
		s.messages = make([]Message, 0)
		return nil
	}
	s.messages = s.messages[:len(s.messages)-remove]
	return nil
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastUsage returns the token usage from the most recent provider call, or
// nil if no call has completed yet.
func (s *Session) LastUsage() *TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUsage == nil {
		return nil
	}
	usage := *s.lastUsage
	return &usage
}

// SetUsage updates the session's last usage statistics.
// Called internally after successful provider calls.
func (s *Session) SetUsage(usage *TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage != nil {
		u := *usage
		s.lastUsage = &u
	}
}
