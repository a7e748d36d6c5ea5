//go:build unix

// Package launcher runs the application: the frame publisher, then the
// optional dashboard and inference processes. The first child to exit takes
// the others down so the watchdog restarts the whole set.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/internal/procgroup"
	"github.com/adris-vision/adris/internal/readiness"
	"github.com/adris-vision/adris/pkg/log"
)

// Child describes one process of the application.
type Child struct {
	Name    string
	Command []string
	Env     []string

	// ReadyFile, when set, is awaited after start. A file already present
	// before start does not count. A timeout is only logged.
	ReadyFile string
}

// Config configures a Launcher.
type Config struct {
	Children     []Child
	StopGrace    time.Duration
	ReadyTimeout time.Duration

	// Stdout and Stderr receive child output; nil means the launcher's own.
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts children in order and tears them down in reverse.
type Launcher struct {
	cfg    Config
	logger log.Logger
}

type child struct {
	Child
	proc *procgroup.Process
}

// New creates a Launcher.
func New(cfg Config, logger log.Logger) *Launcher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Run starts every configured child and blocks until one exits or ctx is
// cancelled. A child exit returns an error wrapping domain.ErrChildExited;
// cancellation returns nil. All children are stopped before Run returns.
func (l *Launcher) Run(ctx context.Context) error {
	var started []*child
	for _, c := range l.cfg.Children {
		if len(c.Command) == 0 {
			l.logger.Info("child not configured, skipping", log.String("child", c.Name))
			continue
		}
		// Whatever sits at the ready path now was left by an earlier run.
		var leftover os.FileInfo
		if c.ReadyFile != "" {
			leftover = readiness.Stat(c.ReadyFile)
		}
		ch, err := l.start(c)
		if err != nil {
			l.stopAll(started)
			return err
		}
		started = append(started, ch)

		if c.ReadyFile != "" {
			l.awaitReady(ctx, c, leftover)
		}
		if ctx.Err() != nil {
			l.stopAll(started)
			return nil
		}
	}
	if len(started) == 0 {
		return fmt.Errorf("%w: no children to run", domain.ErrInvalidConfig)
	}
	l.logger.Info("application started", log.Int("children", len(started)))

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range started {
		ch := ch
		g.Go(func() error {
			select {
			case <-ch.proc.Done():
				return fmt.Errorf("%w: %s: %s", domain.ErrChildExited, ch.Name, exitStatus(ch.proc))
			case <-gctx.Done():
				return nil
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, domain.ErrChildExited) {
		l.logger.Error("child exited unexpectedly", log.Err(err))
	} else {
		l.logger.Info("shutting down")
	}
	l.stopAll(started)
	return err
}

func (l *Launcher) start(c Child) (*child, error) {
	cmd := exec.Command(c.Command[0], c.Command[1:]...) // #nosec G204 -- commands come from operator config
	cmd.Stdout = l.cfg.Stdout
	cmd.Stderr = l.cfg.Stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	proc, err := procgroup.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailed, c.Name, err)
	}
	l.logger.Info("child started",
		log.String("child", c.Name),
		log.Int("pid", proc.Pid()),
		log.Strings("command", c.Command),
	)
	return &child{Child: c, proc: proc}, nil
}

func (l *Launcher) awaitReady(ctx context.Context, c Child, leftover os.FileInfo) {
	err := readiness.WaitForReplacement(ctx, c.ReadyFile, leftover, l.cfg.ReadyTimeout)
	switch {
	case err == nil:
		l.logger.Info("child ready", log.String("child", c.Name), log.String("file", c.ReadyFile))
	case errors.Is(err, readiness.ErrTimeout):
		l.logger.Warn("child not ready in time",
			log.String("child", c.Name),
			log.String("file", c.ReadyFile),
			log.Duration("timeout", l.cfg.ReadyTimeout),
		)
	}
}

// stopAll stops children in reverse start order. An exited child still has
// its group stopped, since helpers it forked may have outlived it.
func (l *Launcher) stopAll(started []*child) {
	for i := len(started) - 1; i >= 0; i-- {
		ch := started[i]
		l.logger.Info("stopping child",
			log.String("child", ch.Name),
			log.Int("pid", ch.proc.Pid()),
			log.Bool("exited", !ch.proc.Alive()),
		)
		if err := ch.proc.Stop(l.cfg.StopGrace); err != nil {
			l.logger.Warn("stop child failed", log.String("child", ch.Name), log.Err(err))
		}
	}
}

func exitStatus(p *procgroup.Process) string {
	if err := p.Err(); err != nil {
		return err.Error()
	}
	return "exit status 0"
}
