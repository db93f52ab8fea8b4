package core

import "pkt.systems/streamfx/schema"

// EventSink receives controller state events. Implementations must not block.
type EventSink interface {
	OnStateEvent(event schema.StateEvent)
}

// HistoryRecorder persists finished sessions.
type HistoryRecorder interface {
	Append(record schema.SessionRecord) error
}
