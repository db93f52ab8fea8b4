// Package window implements headless preview windows. Each window captures
// from a synthetic frame source and keeps the last presented frame so it can
// be served to observers.
package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bradenaw/juniper/xslices"
	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/core"
	"pkt.systems/streamfx/internal/framesource"
	"pkt.systems/streamfx/schema"
)

// ErrManagerClosed is returned by Create after Close.
var ErrManagerClosed = errors.New("window manager closed")

// Options configures a Manager.
type Options struct {
	Width  int
	Height int
	// MaxLive caps concurrently live windows; zero means unlimited.
	MaxLive int
}

// Manager is a core.WindowFactory backed by in-process windows.
type Manager struct {
	opts Options
	log  pslog.Logger

	mu      sync.Mutex
	windows map[schema.WindowID]*Window
	created uint64
	closed  bool
}

// NewManager returns a headless window manager.
func NewManager(ctx context.Context, opts Options) *Manager {
	if opts.Width <= 0 {
		opts.Width = schema.DefaultFrameWidth
	}
	if opts.Height <= 0 {
		opts.Height = schema.DefaultFrameHeight
	}
	return &Manager{
		opts:    opts,
		log:     pslog.Ctx(ctx),
		windows: make(map[schema.WindowID]*Window),
	}
}

// Create allocates a new window.
func (m *Manager) Create(ctx context.Context) (core.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrWindowCreationFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: %w", schema.ErrWindowCreationFailed, ErrManagerClosed)
	}
	if m.opts.MaxLive > 0 && len(m.windows) >= m.opts.MaxLive {
		return nil, fmt.Errorf("%w: %d live windows (limit %d)", schema.ErrWindowCreationFailed, len(m.windows), m.opts.MaxLive)
	}
	w := &Window{
		id:      schema.WindowID(uuid.NewString()),
		source:  framesource.NewPattern(m.opts.Width, m.opts.Height),
		created: time.Now(),
		done:    make(chan struct{}),
		release: m.release,
	}
	m.windows[w.id] = w
	m.created++
	m.log.Debug("window created", "window", w.id, "width", m.opts.Width, "height", m.opts.Height)
	return w, nil
}

func (m *Manager) release(id schema.WindowID) {
	m.mu.Lock()
	delete(m.windows, id)
	m.mu.Unlock()
}

// Get returns the live window with id.
func (m *Manager) Get(id schema.WindowID) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	return w, ok
}

// Live returns the ids of live windows, oldest first.
func (m *Manager) Live() []schema.WindowID {
	m.mu.Lock()
	list := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		list = append(list, w)
	}
	m.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].created.Before(list[j].created) })
	return xslices.Map(list, func(w *Window) schema.WindowID { return w.id })
}

// Created returns the number of windows created over the manager's lifetime.
func (m *Manager) Created() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Latest returns the last frame presented into window id.
func (m *Manager) Latest(id schema.WindowID) (schema.Frame, bool) {
	w, ok := m.Get(id)
	if !ok {
		return schema.Frame{}, false
	}
	return w.Latest()
}

// DestroyAll destroys every live window and returns how many were destroyed.
func (m *Manager) DestroyAll() int {
	m.mu.Lock()
	list := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		list = append(list, w)
	}
	m.mu.Unlock()
	n := 0
	for _, w := range list {
		if err := w.Destroy(); err == nil {
			n++
		}
	}
	if n > 0 {
		m.log.Warn("destroyed leftover windows", "count", n)
	}
	return n
}

// Close rejects further Create calls and destroys live windows.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.DestroyAll()
}
