// Package stream fans out internal events: report job transitions and
// resource writes. Subscribers are in-process consumers (metrics, audit);
// slow subscribers drop events rather than block publishers.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// JobTransition builds the event emitted on every report status change.
func JobTransition(jobID, from, to string) Event {
	return NewEvent("report.transition", map[string]string{
		"jobId": jobID,
		"from":  from,
		"to":    to,
	})
}

// ResourceWrite builds the event emitted after a create/update/delete.
func ResourceWrite(kind, id, action, actor string) Event {
	return NewEvent("resource."+action, map[string]string{
		"kind":  kind,
		"id":    id,
		"actor": actor,
	})
}

type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
