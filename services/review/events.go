// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"sync"

	"github.com/AleutianAI/AleutianReview/services/review/engine"
)

// subscriberBuffer bounds the per-subscriber event queue. Slow readers
// lose events rather than stalling the engine.
const subscriberBuffer = 64

// eventSub is one websocket client's view of the run event stream.
type eventSub struct {
	runID string // empty subscribes to every run
	ch    chan engine.RunEvent
}

// eventHub fans run events out to websocket subscribers.
//
// Thread Safety:
//
//	Safe for concurrent use. broadcast is called synchronously from the
//	engine, so sends must never block; full subscriber queues drop.
type eventHub struct {
	mu   sync.RWMutex
	subs map[*eventSub]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[*eventSub]struct{})}
}

// broadcast delivers an event to every matching subscriber.
func (h *eventHub) broadcast(ev engine.RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.runID != "" && sub.runID != ev.RunID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// subscribe registers a new subscriber scoped to runID, or to all runs
// when runID is empty.
func (h *eventHub) subscribe(runID string) *eventSub {
	sub := &eventSub{runID: runID, ch: make(chan engine.RunEvent, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// unsubscribe removes a subscriber. The channel is left open; broadcast
// stops sending to it once it is out of the map.
func (h *eventHub) unsubscribe(sub *eventSub) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// terminal reports whether an event ends its run's stream.
func terminal(t engine.RunEventType) bool {
	switch t {
	case engine.RunEventCompleted, engine.RunEventSuperseded, engine.RunEventFailed:
		return true
	}
	return false
}
