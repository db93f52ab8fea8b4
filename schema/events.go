package schema

import "time"

// StateEventType identifies a controller event.
type StateEventType string

const (
	// StateEventTransition is emitted on every Idle/Active transition.
	StateEventTransition StateEventType = "state"
	// StateEventTaskCompleted is emitted when a preview loop exits.
	StateEventTaskCompleted StateEventType = "task_completed"
	// StateEventSpareFailed is emitted when spare window pre-creation fails.
	StateEventSpareFailed StateEventType = "spare_failed"
	// StateEventClosed is emitted once the controller shuts down.
	StateEventClosed StateEventType = "closed"
)

// StateEvent is published to bindings observing the controller.
type StateEvent struct {
	Type      StateEventType  `json:"type"`
	Snapshot  SessionSnapshot `json:"snapshot"`
	Task      *TaskStatus     `json:"task,omitempty"`
	Err       string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
