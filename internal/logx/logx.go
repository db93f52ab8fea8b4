package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

type contextKey int

const (
	sessionKey contextKey = iota
	windowKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionWindow annotates the logger with session and window identifiers.
func WithSessionWindow(ctx context.Context, sessionID schema.SessionID, windowID schema.WindowID) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if windowID != "" {
		if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == windowID {
			return log
		}
		log = log.With("window", windowID)
	}
	return log
}

// WithWindow annotates an existing logger with a window id when available.
func WithWindow(log pslog.Logger, windowID schema.WindowID) pslog.Logger {
	if windowID != "" {
		log = log.With("window", windowID)
	}
	return log
}

// WithEffect annotates the logger with effect and model path.
func WithEffect(log pslog.Logger, effect schema.EffectKind, modelPath string) pslog.Logger {
	if effect != "" {
		log = log.With("effect", effect)
	}
	if modelPath != "" {
		log = log.With("model_path", modelPath)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, windowID schema.WindowID) context.Context {
	if ctx == nil || windowID == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey, windowID)
}

// ContextWithSessionLogger attaches the logger and session/window markers to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID, windowID schema.WindowID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithWindow(ContextWithSession(ctx, sessionID), windowID)
}

// CopyContextFields copies session/window markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != "" {
		dst = ContextWithSession(dst, session)
	}
	if window, ok := src.Value(windowKey).(schema.WindowID); ok && window != "" {
		dst = ContextWithWindow(dst, window)
	}
	return dst
}

// Detach returns a cancelable context that keeps the logger and markers of ctx
// but not its deadline or cancellation.
func Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.Background()
	if ctx != nil {
		if logger := pslog.Ctx(ctx); logger != nil {
			base = CopyContextFields(pslog.ContextWithLogger(base, logger), ctx)
		}
	}
	return context.WithCancel(base)
}
