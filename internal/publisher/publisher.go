package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"

	"github.com/adris-vision/adris/internal/capture"
	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/internal/metrics"
	"github.com/adris-vision/adris/pkg/log"
)

const metricsFlushEvery = time.Second

// Config configures a Publisher.
type Config struct {
	FrameDir      string
	Pattern       domain.FramePattern
	PublishedPath string

	PollInterval time.Duration
	// StaleAfter enables the staleness warning when positive.
	StaleAfter time.Duration
	StopGrace  time.Duration

	// CaptureBin is resolved on PATH during preflight.
	CaptureBin string
	Capture    capture.Params

	// CheckJPEG rejects frames without JPEG start and end markers.
	CheckJPEG bool
}

// IsJPEG reports whether ext names a JPEG file.
func IsJPEG(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithLookPath overrides executable resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Publisher) {
		if fn != nil {
			p.lookPath = fn
		}
	}
}

// Publisher owns the capture child and republishes its newest frame to a
// fixed path by atomic rename. It is the only writer of the published path.
type Publisher struct {
	cfg      Config
	pipeline capture.Pipeline
	logger   log.Logger
	metrics  *metrics.Metrics
	lookPath func(string) (string, error)
	now      func() time.Time

	running atomic.Bool
	handle  capture.Handle

	last    domain.FrameFile
	hasLast bool
	stale   bool
}

// New creates a Publisher.
func New(cfg Config, pipeline capture.Pipeline, opts ...Option) *Publisher {
	p := &Publisher{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   log.NewNoopLogger(),
		lookPath: exec.LookPath,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preflight checks startup dependencies. It has no side effects.
func (p *Publisher) Preflight() error {
	if _, err := p.lookPath(p.cfg.CaptureBin); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrCaptureToolMissing, p.cfg.CaptureBin, err)
	}
	info, err := os.Stat(p.cfg.FrameDir)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameDirMissing, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrFrameDirMissing, p.cfg.FrameDir)
	}
	return nil
}

// Prepare removes frames, the published artifact and pending temp files left
// over from a prior run.
func (p *Publisher) Prepare() error {
	frames, err := RemoveFrames(p.cfg.FrameDir, p.cfg.Pattern)
	if err != nil {
		return fmt.Errorf("remove stale frames: %w", err)
	}
	if err := os.Remove(p.cfg.PublishedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale artifact: %w", err)
	}
	pending, err := removePending(p.cfg.PublishedPath)
	if err != nil {
		return fmt.Errorf("remove pending publish files: %w", err)
	}
	p.hasLast = false
	p.stale = false
	p.logger.Debug("prior run cleaned",
		log.Int("frames", frames),
		log.Int("pending", pending),
	)
	return nil
}

// Run checks preconditions, cleans up, starts the capture pipeline and runs
// the publish loop until ctx is cancelled. Cancellation runs Shutdown and
// returns nil.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}
	defer p.running.Store(false)

	if err := p.Preflight(); err != nil {
		return err
	}
	if err := p.Prepare(); err != nil {
		return err
	}

	params := p.cfg.Capture
	if params.Location == "" {
		params.Location = p.cfg.Pattern.Location(p.cfg.FrameDir)
	}
	h, err := p.pipeline.Start(ctx, params)
	if err != nil {
		return err
	}
	p.handle = h
	p.logger.Info("publisher started",
		log.Int("capture_pid", h.Pid()),
		log.String("published", p.cfg.PublishedPath),
		log.Duration("poll", p.cfg.PollInterval),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	captureDone := h.Done()
	for {
		select {
		case <-ctx.Done():
			return p.Shutdown()
		case <-captureDone:
			// Restarting capture belongs to the supervisor above us.
			p.logger.Warn("capture pipeline exited, keeping last published frame",
				log.Int("capture_pid", h.Pid()),
			)
			captureDone = nil
		case <-ticker.C:
			if _, err := p.PublishOnce(); err != nil {
				p.logger.Warn("publish cycle failed", log.Err(err))
			}
		}
	}
}

// PublishOnce runs a single publish cycle and reports whether the published
// path was replaced. Transient races are not errors.
func (p *Publisher) PublishOnce() (bool, error) {
	p.metrics.ObserveCycle()
	defer p.flushMetrics(false)

	frames, err := ScanFrames(p.cfg.FrameDir, p.cfg.Pattern)
	if err != nil {
		p.metrics.ObserveSkip(metrics.SkipError)
		return false, fmt.Errorf("scan frames: %w", err)
	}
	newest, ok := Newest(frames)
	if !ok {
		p.metrics.ObserveSkip(metrics.SkipEmpty)
		return false, nil
	}

	p.checkStale(newest)

	if p.hasLast && newest.SameAs(p.last) && fileExists(p.cfg.PublishedPath) {
		p.metrics.ObserveSkip(metrics.SkipUnchanged)
		return false, nil
	}

	data, err := os.ReadFile(newest.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Debug("frame rotated away before copy", log.String("frame", newest.Name))
			p.metrics.ObserveSkip(metrics.SkipRace)
			return false, nil
		}
		p.metrics.ObserveSkip(metrics.SkipError)
		return false, fmt.Errorf("read frame %s: %w", newest.Name, err)
	}
	if p.cfg.CheckJPEG && !CompleteJPEG(data) {
		p.logger.Debug("incomplete frame skipped",
			log.String("frame", newest.Name),
			log.Int("bytes", len(data)),
		)
		p.metrics.ObserveSkip(metrics.SkipIncomplete)
		return false, nil
	}

	if err := p.replace(data); err != nil {
		p.metrics.ObserveSkip(metrics.SkipError)
		return false, err
	}
	p.last, p.hasLast = newest, true
	p.metrics.ObservePublish(p.now())
	return true, nil
}

// replace writes data beside the published path and renames it into place.
func (p *Publisher) replace(data []byte) error {
	pf, err := renameio.NewPendingFile(p.cfg.PublishedPath,
		renameio.WithTempDir(filepath.Dir(p.cfg.PublishedPath)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", p.cfg.PublishedPath, err)
	}
	return nil
}

func (p *Publisher) checkStale(newest domain.FrameFile) {
	age := p.now().Sub(newest.ModTime)
	if age < 0 {
		age = 0
	}
	p.metrics.SetFrameAge(age)
	if p.cfg.StaleAfter <= 0 {
		return
	}
	switch {
	case age > p.cfg.StaleAfter && !p.stale:
		p.stale = true
		p.logger.Warn("newest frame is stale",
			log.String("frame", newest.Name),
			log.Duration("age", age),
			log.Duration("stale_after", p.cfg.StaleAfter),
		)
	case age <= p.cfg.StaleAfter && p.stale:
		p.stale = false
		p.logger.Info("fresh frames resumed", log.String("frame", newest.Name))
	}
}

// Stale reports whether the last cycle saw a stale newest frame.
func (p *Publisher) Stale() bool { return p.stale }

// Shutdown stops the capture child and removes numbered frames and pending
// temp files. The published artifact is left in place.
func (p *Publisher) Shutdown() error {
	var errs []error
	if p.handle != nil {
		if err := p.handle.Stop(p.cfg.StopGrace); err != nil {
			errs = append(errs, err)
		}
	}
	removed, err := RemoveFrames(p.cfg.FrameDir, p.cfg.Pattern)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove frames: %w", err))
	}
	if _, err := removePending(p.cfg.PublishedPath); err != nil {
		errs = append(errs, fmt.Errorf("remove pending publish files: %w", err))
	}
	p.flushMetrics(true)

	p.logger.Info("publisher stopped", log.Int("frames_removed", removed))
	return errors.Join(errs...)
}

func (p *Publisher) flushMetrics(force bool) {
	var err error
	if force {
		err = p.metrics.Flush()
	} else {
		err = p.metrics.MaybeFlush(metricsFlushEvery)
	}
	if err != nil {
		p.logger.Debug("metrics flush failed", log.Err(err))
	}
}

// CompleteJPEG reports whether data starts with SOI and ends with EOI.
func CompleteJPEG(data []byte) bool {
	return len(data) >= 4 &&
		bytes.HasPrefix(data, []byte{0xFF, 0xD8}) &&
		bytes.HasSuffix(data, []byte{0xFF, 0xD9})
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
