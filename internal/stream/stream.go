// Package stream fan-outs security events to in-process subscribers. The
// HTTP layer exposes it as a server-sent events feed for operator dashboards.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the auth flows.
const (
	EventLoginSuccess   = "login.success"
	EventLoginFailure   = "login.failure"
	EventAccountLocked  = "account.locked"
	EventTokenRefreshed = "token.refreshed"
	EventTokenRevoked   = "token.revoked"
	EventUserRegistered = "user.registered"
)

// SecurityEvent is one auth transition worth watching.
type SecurityEvent struct {
	Type           string    `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	ServiceID      string    `json:"service_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stream fan-outs security events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan SecurityEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan SecurityEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SecurityEvent {
	ch := make(chan SecurityEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. The timestamp is stamped
// here when the producer left it zero.
func (s *Stream) Publish(evt SecurityEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
