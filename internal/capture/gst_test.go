//go:build unix

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(dir string) Params {
	return Params{
		SensorID:     0,
		SourceWidth:  1920,
		SourceHeight: 1080,
		Framerate:    30,
		OutputSize:   640,
		JPEGQuality:  85,
		MaxFiles:     3,
		Location:     filepath.Join(dir, "frame_%05d.jpg"),
	}
}

func TestParams_Crop(t *testing.T) {
	tests := []struct {
		w, h int
		want Crop
	}{
		{1920, 1080, Crop{Top: 0, Bottom: 1080, Left: 420, Right: 1500}},
		{1080, 1920, Crop{Top: 420, Bottom: 1500, Left: 0, Right: 1080}},
		{640, 640, Crop{Top: 0, Bottom: 640, Left: 0, Right: 640}},
	}
	for _, tt := range tests {
		got := Params{SourceWidth: tt.w, SourceHeight: tt.h}.Crop()
		assert.Equal(t, tt.want, got, "%dx%d", tt.w, tt.h)
		assert.Equal(t, got.Width(), got.Height(), "crop must be square")
	}
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(testParams("/dev/shm/adris"))
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"nvarguscamerasrc sensor-id=0",
		"video/x-raw(memory:NVMM),width=1920,height=1080,framerate=30/1",
		"nvvidconv top=0 bottom=1080 left=420 right=1500",
		"video/x-raw,width=640,height=640,format=I420",
		"jpegenc quality=85",
		"multifilesink location=/dev/shm/adris/frame_%05d.jpg max-files=3",
	} {
		assert.Contains(t, joined, want)
	}
	assert.Equal(t, "-e", args[0])
}

func TestParams_Validate(t *testing.T) {
	p := testParams("/tmp")
	require.NoError(t, p.Validate())

	bad := p
	bad.MaxFiles = 0
	assert.Error(t, bad.Validate())

	bad = p
	bad.Location = ""
	assert.Error(t, bad.Validate())
}

func TestGStreamer_StartMissingBinary(t *testing.T) {
	g := NewGStreamer(filepath.Join(t.TempDir(), "no-such-gst"), nil)
	_, err := g.Start(context.Background(), testParams(t.TempDir()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSpawnFailed))
}

// A shell script stands in for gst-launch: it ignores its arguments and
// sleeps, which is enough to exercise the process handle.
func TestGStreamer_StartStop(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-gst")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho started\nexec sleep 30\n"), 0o755))

	g := NewGStreamer(bin, nil)
	h, err := g.Start(context.Background(), testParams(dir))
	require.NoError(t, err)
	require.True(t, h.Alive())
	require.Greater(t, h.Pid(), 0)

	require.NoError(t, h.Stop(2*time.Second))
	assert.False(t, h.Alive())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
	assert.NoError(t, h.Stop(time.Second), "stopping a dead process is not an error")
}

// Output without a newline for far longer than any line buffer must not stop
// the drain; a stalled drain would close the pipe and kill the pipeline with
// SIGPIPE on its next write.
func TestGStreamer_LongOutputLineKeepsPipelineAlive(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-gst")
	script := "#!/bin/sh\nhead -c 2000000 /dev/zero | tr '\\0' x\necho\nwhile :; do echo tick; sleep 0.02; done\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	h, err := NewGStreamer(bin, nil).Start(context.Background(), testParams(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(2 * time.Second) })

	time.Sleep(500 * time.Millisecond)
	assert.True(t, h.Alive(), "pipeline died while printing")
}
