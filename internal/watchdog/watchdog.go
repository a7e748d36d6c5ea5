//go:build unix

// Package watchdog keeps the application process running forever. Every
// state change and every line the application prints is appended to a
// durable sink in the order it happened.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/internal/metrics"
	"github.com/adris-vision/adris/internal/procgroup"
	"github.com/adris-vision/adris/pkg/lifecycle"
	"github.com/adris-vision/adris/pkg/log"
)

// Sink receives lifecycle events and captured application output.
type Sink interface {
	log.Logger
	AppLine(line string)
}

// Config configures a Watchdog.
type Config struct {
	// Command is the application argv.
	Command []string
	// Env is appended to the inherited environment.
	Env []string
	Dir string

	Policy    lifecycle.RestartPolicy
	StopGrace time.Duration
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watchdog) { w.metrics = m }
}

// WithEmitter receives state machine transitions.
func WithEmitter(e lifecycle.EventEmitter) Option {
	return func(w *Watchdog) { w.emitter = e }
}

// Watchdog supervises one application process at a time.
type Watchdog struct {
	cfg     Config
	sink    Sink
	metrics *metrics.Metrics
	emitter lifecycle.EventEmitter
	manager *lifecycle.DefaultManager

	running  atomic.Bool
	restarts int
}

// New creates a Watchdog.
func New(cfg Config, sink Sink, opts ...Option) (*Watchdog, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: application command is empty", domain.ErrInvalidConfig)
	}
	if cfg.Policy == nil {
		cfg.Policy = lifecycle.FixedDelay(3 * time.Second)
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	w := &Watchdog{cfg: cfg, sink: sink}
	for _, opt := range opts {
		opt(w)
	}
	w.manager = lifecycle.NewManager(sink, w.emitter)
	return w, nil
}

// State returns the current lifecycle state.
func (w *Watchdog) State() lifecycle.State { return w.manager.State() }

// Restarts returns the cumulative restart count.
func (w *Watchdog) Restarts() int { return w.restarts }

// Run launches the application and restarts it whenever it exits until ctx
// is cancelled. Cancellation stops the running child and returns nil.
func (w *Watchdog) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.sink.Info("watchdog started",
		log.Strings("command", w.cfg.Command),
		log.Int("pid", os.Getpid()),
	)
	w.transition(lifecycle.StateLaunching, "watchdog started")

	for {
		if ctx.Err() != nil {
			return w.terminate("signal", domain.Session{})
		}
		sess, err := w.runOnce(ctx)
		if err != nil {
			// Only cancellation ends runOnce early.
			return w.terminate("signal", sess)
		}

		w.metrics.ObserveExit(sess.Outcome())
		delay, ok := w.cfg.Policy.Delay(w.restarts)
		if !ok {
			w.sink.Error("restart limit reached, giving up",
				log.String("session", sess.ID),
				log.Int("restarts", w.restarts),
			)
			w.terminate("restart limit", sess)
			return domain.ErrRestartsExhausted
		}
		w.transition(lifecycle.StateRestarting, sess.ExitStatus())
		w.sink.Warn("application stopped, restarting",
			log.String("session", sess.ID),
			log.Int("pid", sess.Pid),
			log.String("status", sess.ExitStatus()),
			log.Duration("uptime", sess.Uptime()),
			log.Int("restarts", w.restarts),
			log.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return w.terminate("signal", domain.Session{})
		case <-timer.C:
		}
		w.restarts++
		w.transition(lifecycle.StateLaunching, "restart delay elapsed")
	}
}

// runOnce spawns the application and waits for it to exit. It returns a
// non-nil error only when ctx was cancelled, after the child is stopped.
func (w *Watchdog) runOnce(ctx context.Context) (domain.Session, error) {
	sess := domain.Session{
		ID:       uuid.NewString(),
		Restarts: w.restarts,
		ExitCode: -1,
	}
	w.metrics.ObserveLaunch(w.restarts)
	w.sink.Info("launching application",
		log.String("session", sess.ID),
		log.Int("restarts", w.restarts),
	)

	cmd, pr, err := w.spawn()
	sess.StartedAt = time.Now()
	if err != nil {
		sess.Err = err
		sess.EndedAt = sess.StartedAt
		w.sink.Error("application spawn failed",
			log.String("session", sess.ID),
			log.Err(err),
		)
		return sess, nil
	}
	sess.Pid = cmd.Process.Pid
	w.transition(lifecycle.StateRunning, "spawned")
	w.sink.Info("application running",
		log.String("session", sess.ID),
		log.Int("pid", sess.Pid),
		log.Time("started", sess.StartedAt),
	)

	w.manager.AddWorker()
	go w.pump(pr)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		w.sink.Info("stopping application",
			log.String("session", sess.ID),
			log.Int("pid", sess.Pid),
			log.Duration("grace", w.cfg.StopGrace),
		)
		waitErr = procgroup.Terminate(cmd, waitCh, w.cfg.StopGrace)
		w.finish(&sess, cmd, waitErr)
		w.drainOutput()
		return sess, ctx.Err()
	}
	w.finish(&sess, cmd, waitErr)
	w.drainOutput()
	return sess, nil
}

func (w *Watchdog) spawn() (*exec.Cmd, *os.File, error) {
	cmd := exec.Command(w.cfg.Command[0], w.cfg.Command[1:]...) // #nosec G204 -- command comes from operator config
	cmd.Dir = w.cfg.Dir
	if len(w.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), w.cfg.Env...)
	}
	procgroup.Set(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailed, w.cfg.Command[0], err)
	}
	pw.Close()
	return cmd, pr, nil
}

// maxAppLine splits longer application output into several log lines.
const maxAppLine = 1024 * 1024

// pump copies the combined application output into the sink line by line.
func (w *Watchdog) pump(r *os.File) {
	defer w.manager.WorkerDone()
	defer r.Close()
	if err := procgroup.ForwardLines(r, maxAppLine, w.sink.AppLine); err != nil {
		w.sink.Warn("application output read failed", log.Err(err))
	}
}

// drainOutput lets the pump flush what the application printed before the
// exit is logged. Grandchildren holding the pipe open are not waited for.
func (w *Watchdog) drainOutput() {
	if err := w.manager.WaitWithTimeout(w.cfg.StopGrace); err != nil {
		w.sink.Debug("application output still open after exit")
	}
}

func (w *Watchdog) finish(sess *domain.Session, cmd *exec.Cmd, waitErr error) {
	sess.EndedAt = time.Now()
	state := cmd.ProcessState
	if state == nil {
		sess.Err = waitErr
		return
	}
	sess.ExitCode = state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sess.Signal = ws.Signal().String()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		sess.Err = waitErr
	}
}

func (w *Watchdog) terminate(reason string, last domain.Session) error {
	w.transition(lifecycle.StateTerminated, reason)
	fields := []log.Field{
		log.String("reason", reason),
		log.Int("restarts", w.restarts),
	}
	if last.ID != "" {
		fields = append(fields,
			log.String("session", last.ID),
			log.String("status", last.ExitStatus()),
			log.Duration("uptime", last.Uptime()),
		)
	}
	w.sink.Info("watchdog terminated", fields...)
	if err := w.metrics.Flush(); err != nil {
		w.sink.Debug("metrics flush failed", log.Err(err))
	}
	return nil
}

func (w *Watchdog) transition(to lifecycle.State, reason string) {
	if err := w.manager.TransitionTo(to, reason); err != nil {
		w.sink.Debug("ignored state transition", log.Err(err))
	}
	if to != lifecycle.StateTerminated {
		_ = w.metrics.MaybeFlush(time.Second)
	}
}
