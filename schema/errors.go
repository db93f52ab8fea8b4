package schema

import "errors"

var (
	// ErrWindowCreationFailed indicates the window layer could not allocate a preview window.
	ErrWindowCreationFailed = errors.New("window creation failed")
	// ErrAlreadyDestroyed is returned by redundant destroy calls; callers treat it as a no-op.
	ErrAlreadyDestroyed = errors.New("window already destroyed")
	// ErrWindowDestroyed indicates an operation on a window after it was destroyed.
	ErrWindowDestroyed = errors.New("window destroyed")
	// ErrInferenceFailed indicates a single inference pass failed.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrInferenceTimeout indicates an inference pass exceeded its deadline.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrControllerClosed indicates the controller has been shut down.
	ErrControllerClosed = errors.New("controller closed")
	// ErrInvalidConfig indicates a malformed controller configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidModelPath indicates the model path is empty or unusable.
	ErrInvalidModelPath = errors.New("invalid model path")
	// ErrUnknownEffect indicates an unsupported effect kind.
	ErrUnknownEffect = errors.New("unknown effect")
	// ErrQueueClosed indicates the command queue no longer accepts work.
	ErrQueueClosed = errors.New("command queue closed")
	// ErrQueueFull indicates the command queue buffer is full.
	ErrQueueFull = errors.New("command queue full")
)
