package core

import "pkt.systems/pslog"

// ControllerDeps captures the collaborators of a session controller.
type ControllerDeps struct {
	Windows    WindowFactory
	Inferencer Inferencer
	EventSink  EventSink
	History    HistoryRecorder
	Logger     pslog.Logger
}
