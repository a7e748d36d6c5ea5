package publisher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adris-vision/adris/internal/capture"
	"github.com/adris-vision/adris/internal/domain"
)

var testPattern = domain.NewFramePattern("frame_", ".jpg")

func okLookPath(string) (string, error) { return "/usr/bin/gst-launch-1.0", nil }

// testJPEG encodes a small uniform gray image.
func testJPEG(t testing.TB, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func writeFrame(t testing.TB, dir string, idx int, data []byte, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, testPattern.Name(idx))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	return path
}

// fakePipeline stands in for the capture tool. It writes frames into its
// directory while keeping at most maxFiles numbered files on disk.
type fakePipeline struct {
	dir      string
	maxFiles int
	interval time.Duration // zero: frames only via handle.emit
	shades   []uint8
	startErr error

	starts atomic.Int32

	mu     sync.Mutex
	params capture.Params
	handle *fakeHandle
}

func (f *fakePipeline) Start(_ context.Context, params capture.Params) (capture.Handle, error) {
	f.starts.Add(1)
	if f.startErr != nil {
		return nil, f.startErr
	}
	h := &fakeHandle{
		dir:      f.dir,
		maxFiles: f.maxFiles,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	f.mu.Lock()
	f.params = params
	f.handle = h
	f.mu.Unlock()

	if f.interval > 0 {
		go h.loop(f.interval, f.shades)
	} else {
		go func() {
			<-h.stop
			close(h.done)
		}()
	}
	return h, nil
}

func (f *fakePipeline) current() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

type fakeHandle struct {
	dir      string
	maxFiles int

	mu   sync.Mutex
	next int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	stopped  atomic.Bool
}

func (h *fakeHandle) loop(interval time.Duration, shades []uint8) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			_ = h.emit(frameFor(shades, i))
		}
	}
}

var encoded sync.Map

func frameFor(shades []uint8, i int) []byte {
	shade := uint8(i)
	if len(shades) > 0 {
		shade = shades[i%len(shades)]
	}
	if b, ok := encoded.Load(shade); ok {
		return b.([]byte)
	}
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for j := range img.Pix {
		img.Pix[j] = shade
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	encoded.Store(shade, buf.Bytes())
	return buf.Bytes()
}

// emit writes the next numbered frame. The old frame is removed before the
// new one becomes visible so the cap holds at every instant.
func (h *fakeHandle) emit(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	tmp := filepath.Join(h.dir, ".capture.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if old := h.next - h.maxFiles; old >= 1 {
		_ = os.Remove(filepath.Join(h.dir, testPattern.Name(old)))
	}
	return os.Rename(tmp, filepath.Join(h.dir, testPattern.Name(h.next)))
}

// die simulates the capture process crashing.
func (h *fakeHandle) die() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *fakeHandle) Pid() int { return 0 }

func (h *fakeHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Stop(time.Duration) error {
	h.stopped.Store(true)
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
	return nil
}

func countFrames(t testing.TB, dir string) int {
	t.Helper()
	frames, err := ScanFrames(dir, testPattern)
	require.NoError(t, err)
	return len(frames)
}

func mustRead(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err, fmt.Sprintf("read %s", path))
	return b
}
