package schema

import "time"

// TaskEndReason explains why a preview loop exited.
type TaskEndReason string

const (
	// TaskRunning indicates the loop has not exited.
	TaskRunning TaskEndReason = ""
	// TaskCancelled indicates the cancellation signal stopped the loop.
	TaskCancelled TaskEndReason = "cancelled"
	// TaskWindowDestroyed indicates the target window went away.
	TaskWindowDestroyed TaskEndReason = "window_destroyed"
	// TaskInferenceFailed indicates an inference pass failed.
	TaskInferenceFailed TaskEndReason = "inference_failed"
	// TaskInferenceTimeout indicates an inference pass exceeded its deadline.
	TaskInferenceTimeout TaskEndReason = "inference_timeout"
	// TaskCaptureFailed indicates frame acquisition failed.
	TaskCaptureFailed TaskEndReason = "capture_failed"
	// TaskPresentFailed indicates rendering into the window failed.
	TaskPresentFailed TaskEndReason = "present_failed"
)

// Graceful reports whether the reason is a normal termination.
func (r TaskEndReason) Graceful() bool {
	return r == TaskCancelled || r == TaskWindowDestroyed
}

// TaskStatus is a point-in-time view of a preview task.
type TaskStatus struct {
	SessionID SessionID     `json:"session_id"`
	WindowID  WindowID      `json:"window_id"`
	Completed bool          `json:"completed"`
	Frames    uint64        `json:"frames"`
	Started   time.Time     `json:"started"`
	Ended     time.Time     `json:"ended,omitempty"`
	Reason    TaskEndReason `json:"reason,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// SessionSnapshot is the observable controller state for bindings.
type SessionSnapshot struct {
	State         SessionState `json:"state"`
	Effect        EffectKind   `json:"effect"`
	SessionID     SessionID    `json:"session_id,omitempty"`
	WindowID      WindowID     `json:"window_id,omitempty"`
	SpareWindowID WindowID     `json:"spare_window_id,omitempty"`
	SpareReady    bool         `json:"spare_ready"`
	Task          *TaskStatus  `json:"task,omitempty"`
	Closed        bool         `json:"closed,omitempty"`
}

// SessionRecord is a finished session kept in the history store.
type SessionRecord struct {
	SessionID SessionID     `json:"session_id"`
	WindowID  WindowID      `json:"window_id"`
	Effect    EffectKind    `json:"effect"`
	Started   time.Time     `json:"started"`
	Ended     time.Time     `json:"ended"`
	Frames    uint64        `json:"frames"`
	Reason    TaskEndReason `json:"reason"`
	Err       string        `json:"error,omitempty"`
}
