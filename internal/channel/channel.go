// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package channel provides the broadcast-group registry the login gate
// joins fresh sessions into. Membership semantics beyond join live in
// the chat engine, not here.
package channel

import (
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Channel is a named broadcast group.
type Channel struct {
	Name       string
	Topic      string
	PublicRead bool
	Hidden     bool
}

// Registry is an in-memory channel registry.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	members  map[string]map[int32]struct{}
}

// NewRegistry creates a registry holding the given channels.
func NewRegistry(channels ...*Channel) *Registry {
	r := &Registry{
		channels: make(map[string]*Channel, len(channels)),
		members:  make(map[string]map[int32]struct{}, len(channels)),
	}
	for _, ch := range channels {
		r.channels[ch.Name] = ch
		r.members[ch.Name] = make(map[int32]struct{})
	}
	return r
}

// Join adds a user to a channel.
func (r *Registry) Join(name string, userID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[name]
	if !ok {
		return oops.Code("CHANNEL_NOT_FOUND").
			With("channel", name).
			Errorf("channel %s does not exist", name)
	}
	members[userID] = struct{}{}
	return nil
}

// Leave removes a user from a channel. Leaving a channel the user is
// not in is a no-op.
func (r *Registry) Leave(name string, userID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.members[name]; ok {
		delete(members, userID)
	}
}

// Members reports the current population of a channel.
func (r *Registry) Members(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[name])
}

// ListVisible returns all public-readable, non-hidden channels sorted
// by name.
func (r *Registry) ListVisible() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.PublicRead && !ch.Hidden {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
