//go:build unix

package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/internal/procgroup"
	"github.com/adris-vision/adris/pkg/log"
)

// DefaultBin is the GStreamer launcher used on the Jetson target.
const DefaultBin = "gst-launch-1.0"

// GStreamer runs the Argus camera through gst-launch-1.0: hardware capture,
// GPU crop/scale with nvvidconv, JPEG encode and a bounded multifilesink.
type GStreamer struct {
	Bin    string
	Logger log.Logger
}

// NewGStreamer returns a pipeline using bin (DefaultBin when empty).
func NewGStreamer(bin string, logger log.Logger) *GStreamer {
	if bin == "" {
		bin = DefaultBin
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &GStreamer{Bin: bin, Logger: logger}
}

// BuildArgs renders the gst-launch argument vector for params.
func BuildArgs(p Params) []string {
	crop := p.Crop()
	itoa := strconv.Itoa
	return []string{
		"-e",
		"nvarguscamerasrc", "sensor-id=" + itoa(p.SensorID),
		"!", fmt.Sprintf("video/x-raw(memory:NVMM),width=%d,height=%d,framerate=%d/1", p.SourceWidth, p.SourceHeight, p.Framerate),
		"!", "nvvidconv",
		"top=" + itoa(crop.Top), "bottom=" + itoa(crop.Bottom),
		"left=" + itoa(crop.Left), "right=" + itoa(crop.Right),
		"!", fmt.Sprintf("video/x-raw,width=%d,height=%d,format=I420", p.OutputSize, p.OutputSize),
		"!", "jpegenc", "quality=" + itoa(p.JPEGQuality),
		"!", "multifilesink", "location=" + p.Location, "max-files=" + itoa(p.MaxFiles),
	}
}

// Start spawns the capture process in its own process group.
func (g *GStreamer) Start(ctx context.Context, params Params) (Handle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := BuildArgs(params)
	cmd := exec.Command(g.Bin, args...) // #nosec G204 -- binary comes from operator config

	// A plain pipe instead of StdoutPipe: Wait must not close the read end
	// while the drain goroutine is still consuming it.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	proc, err := procgroup.Start(cmd)
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailed, g.Bin, err)
	}
	pw.Close()

	g.Logger.Info("capture pipeline started",
		log.Int("pid", proc.Pid()),
		log.String("bin", g.Bin),
		log.Strings("args", args),
	)

	go g.drain(pr, proc.Pid())
	return proc, nil
}

// drain forwards pipeline chatter to the logger until the pipe closes.
func (g *GStreamer) drain(r io.ReadCloser, pid int) {
	defer r.Close()
	err := procgroup.ForwardLines(r, procgroup.MaxLineBytes, func(line string) {
		g.Logger.Debug("capture output", log.Int("pid", pid), log.String("line", line))
	})
	if err != nil {
		g.Logger.Warn("capture output read failed", log.Int("pid", pid), log.Err(err))
	}
}
