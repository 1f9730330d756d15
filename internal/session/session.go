// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package session holds live login sessions and the shared registry
// the rest of the server enumerates them through.
package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/beatgate/beatgate/internal/user"
)

// Session represents one logged-in client. It is created exactly once
// per successful login and carries the outbound packet queue for that
// client.
type Session struct {
	ID             string
	UserID         int32
	Username       string
	Origin         string
	CreatedAt      time.Time
	UTCOffset      int
	Tournament     bool
	Privileges     user.Privileges
	Restricted     bool
	SilenceEnd     time.Time
	Country        uint8
	Latitude       float32
	Longitude      float32
	AllowCity      bool
	BlockStranger  bool // reject private messages from non-friends
	mu             sync.Mutex
	queue          []byte
}

// New allocates a session bound to an identity and origin address.
func New(userID int32, username, origin string, utcOffset int, tournament bool) *Session {
	return &Session{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Username:   username,
		Origin:     origin,
		CreatedAt:  time.Now(),
		UTCOffset:  utcOffset,
		Tournament: tournament,
	}
}

// Enqueue appends packet bytes to the outbound queue.
func (s *Session) Enqueue(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, b...)
}

// Drain returns the queued bytes and clears the queue. The returned
// slice is owned by the caller; the session never retains it.
func (s *Session) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// QueueLen reports the size of the outbound queue in bytes.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Elevated reports admin-equivalent privilege on the snapshot taken at
// login. Privilege changes after login take effect on the next login.
func (s *Session) Elevated() bool {
	return s.Privileges.Elevated()
}

// SilenceSecondsLeft returns the remaining silence in whole seconds at
// the given instant, or 0 if the silence has lapsed.
func (s *Session) SilenceSecondsLeft(now time.Time) int32 {
	if !s.SilenceEnd.After(now) {
		return 0
	}
	return int32(s.SilenceEnd.Sub(now) / time.Second)
}
