package domain

import (
	"fmt"
	"time"
)

// Session tracks one supervised run of the application process.
type Session struct {
	ID        string
	Pid       int
	StartedAt time.Time
	EndedAt   time.Time

	// Restarts is the cumulative restart count at the time this session
	// was launched. It is unbounded.
	Restarts int

	// ExitCode is -1 while running, when the process was killed by a
	// signal, or when it never started.
	ExitCode int
	Signal   string
	Err      error
}

// Uptime returns how long the session ran.
func (s Session) Uptime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// ExitStatus renders the exit outcome for log lines.
func (s Session) ExitStatus() string {
	switch {
	case s.Pid == 0 && s.Err != nil:
		return fmt.Sprintf("spawn failed: %v", s.Err)
	case s.Signal != "":
		return "signal " + s.Signal
	case s.ExitCode >= 0:
		return fmt.Sprintf("exit code %d", s.ExitCode)
	case s.Err != nil:
		return s.Err.Error()
	default:
		return "unknown"
	}
}

// Exit outcomes, a low-cardinality summary of ExitStatus.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeSignal      = "signal"
	OutcomeSpawnFailed = "spawn_failed"
)

// Outcome classifies how the session ended.
func (s Session) Outcome() string {
	switch {
	case s.Pid == 0:
		return OutcomeSpawnFailed
	case s.Signal != "":
		return OutcomeSignal
	case s.ExitCode == 0:
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}
