// Package capture wraps the external camera pipeline as an opaque child
// process. The publisher only depends on Pipeline and Handle so tests can
// substitute a fake that writes synthetic frames.
package capture

import (
	"context"
	"fmt"
	"time"
)

// Params are the invocation parameters handed verbatim to the capture tool.
type Params struct {
	SensorID     int
	SourceWidth  int
	SourceHeight int
	Framerate    int
	OutputSize   int
	JPEGQuality  int
	MaxFiles     int

	// Location is the printf-style numbered output template,
	// e.g. /dev/shm/adris/frame_%05d.jpg.
	Location string
}

// Crop is a crop window in source pixel coordinates.
type Crop struct {
	Top, Bottom, Left, Right int
}

// Width of the crop window.
func (c Crop) Width() int { return c.Right - c.Left }

// Height of the crop window.
func (c Crop) Height() int { return c.Bottom - c.Top }

// Crop returns the centered square crop covering the shorter source edge.
func (p Params) Crop() Crop {
	side := p.SourceWidth
	if p.SourceHeight < side {
		side = p.SourceHeight
	}
	left := (p.SourceWidth - side) / 2
	top := (p.SourceHeight - side) / 2
	return Crop{Top: top, Bottom: top + side, Left: left, Right: left + side}
}

// Validate checks that the parameters describe a runnable pipeline.
func (p Params) Validate() error {
	switch {
	case p.SourceWidth <= 0 || p.SourceHeight <= 0:
		return fmt.Errorf("capture: invalid source resolution %dx%d", p.SourceWidth, p.SourceHeight)
	case p.OutputSize <= 0:
		return fmt.Errorf("capture: invalid output size %d", p.OutputSize)
	case p.Framerate <= 0:
		return fmt.Errorf("capture: invalid framerate %d", p.Framerate)
	case p.MaxFiles < 1:
		return fmt.Errorf("capture: max files must be at least 1")
	case p.Location == "":
		return fmt.Errorf("capture: output location is required")
	}
	return nil
}

// Pipeline starts capture processes.
type Pipeline interface {
	Start(ctx context.Context, params Params) (Handle, error)
}

// Handle controls one running capture process.
type Handle interface {
	// Pid returns the OS process id, or 0 for in-process fakes.
	Pid() int

	// Alive reports whether the process is still running.
	Alive() bool

	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// Stop terminates the process, escalating after grace. Stopping an
	// already exited process returns nil.
	Stop(grace time.Duration) error
}
