// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package session

import (
	"log/slog"
	"sync"
)

// Registry is the shared map of live sessions. It is mutated by
// concurrent logins, logouts and anti-cheat ejections, so every access
// runs under a single mutex scope and enumeration returns a
// point-in-time snapshot.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Session),
	}
}

// Add inserts a session. For non-tournament sessions any existing
// primary session for the same user is evicted first, under the same
// lock, so a user can never hold two live primary sessions.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.Tournament {
		for id, existing := range r.byID {
			if existing.UserID == s.UserID && !existing.Tournament {
				delete(r.byID, id)
			}
		}
	}
	r.byID[s.ID] = s
}

// Delete removes a session by ID. Deleting an absent session is a
// no-op, which keeps anti-cheat ejection idempotent against a
// concurrent logout.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		slog.Debug("delete called for absent session", "session_id", id)
		return
	}
	delete(r.byID, id)
}

// DeleteAllForUser removes every live session for a user. Calling it
// for a user with zero sessions is a no-op.
func (r *Registry) DeleteAllForUser(userID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.byID {
		if s.UserID == userID {
			delete(r.byID, id)
		}
	}
}

// Get returns a session by ID, or nil if none exists.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Snapshot returns a point-in-time view of all live sessions. Sessions
// created after the snapshot is taken do not appear; convergence
// happens on the next enumeration.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
