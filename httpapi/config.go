package httpapi

import "time"

// Config defines HTTP API settings.
type Config struct {
	Addr            string
	BasePath        string
	ShutdownTimeout time.Duration
	// HistoryLimit caps /api/history when the request does not set limit.
	HistoryLimit int
	JPEGQuality  int
}

const (
	defaultShutdownTimeout = 5 * time.Second
	defaultHistoryLimit    = 50
	defaultJPEGQuality     = 80
)
