package server

import "time"

const EventVersion = 1

// Event is the envelope of frames the relay generates itself. Relayed
// upstream frames keep their own shape.
type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectionEvent struct {
	Event
	Connected bool   `json:"connected"`
	Upstream  string `json:"upstream"`
	Attempt   int    `json:"attempt"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
