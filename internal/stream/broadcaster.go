// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package stream fans packet bytes out to named broadcast streams.
package stream

import (
	"log/slog"
	"sync"
)

// Main is the general audience stream every unrestricted session
// subscribes to.
const Main = "main"

// Broadcaster distributes packet payloads to subscribers of a stream.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string][]chan []byte),
	}
}

// Subscribe creates a channel receiving payloads sent to a stream.
func (b *Broadcaster) Subscribe(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, 100)
	b.subs[name] = append(b.subs[name], ch)
	return ch
}

// Unsubscribe removes a channel from a stream and closes it.
func (b *Broadcaster) Unsubscribe(name string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub == ch {
			b.subs[name] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast sends a payload to all subscribers of a stream. Slow
// subscribers with a full buffer miss the payload.
func (b *Broadcaster) Broadcast(name string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[name] {
		select {
		case ch <- payload:
		default:
			slog.Warn("payload dropped: subscriber buffer full",
				"stream", name,
				"payload_bytes", len(payload),
			)
		}
	}
}
