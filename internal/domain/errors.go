package domain

import "errors"

// Startup errors are fatal and are returned before any child is spawned.
var (
	// ErrCaptureToolMissing is returned when the capture executable cannot be
	// resolved on PATH.
	ErrCaptureToolMissing = errors.New("adris: capture tool not found")

	// ErrFrameDirMissing is returned when the shared frame directory does not
	// exist or is not a directory.
	ErrFrameDirMissing = errors.New("adris: frame directory missing")

	// ErrLogDirUnavailable is returned when the watchdog cannot create or open
	// its log sink.
	ErrLogDirUnavailable = errors.New("adris: log directory unavailable")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("adris: invalid configuration")
)

// Runtime errors.
var (
	// ErrSpawnFailed wraps a failure to launch a child process.
	ErrSpawnFailed = errors.New("adris: spawn failed")

	// ErrChildExited is returned by the launcher when one of its children
	// exited while the application was supposed to be running.
	ErrChildExited = errors.New("adris: child process exited")

	// ErrRestartsExhausted is returned by the watchdog when a bounded restart
	// policy gives up.
	ErrRestartsExhausted = errors.New("adris: restart limit reached")

	// ErrAlreadyRunning is returned when a loop is started twice.
	ErrAlreadyRunning = errors.New("adris: already running")
)
