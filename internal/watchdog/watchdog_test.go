//go:build unix

package watchdog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/internal/eventlog"
	"github.com/adris-vision/adris/internal/metrics"
	"github.com/adris-vision/adris/internal/procgroup"
	"github.com/adris-vision/adris/pkg/lifecycle"
	"github.com/adris-vision/adris/pkg/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type entry struct {
	at    time.Time
	level string
	msg   string
	app   bool
}

// memSink records entries in arrival order.
type memSink struct {
	mu      sync.Mutex
	entries []entry
}

func (s *memSink) add(level, msg string, app bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{at: time.Now(), level: level, msg: msg, app: app})
}

func (s *memSink) Debug(msg string, _ ...log.Field) { s.add("debug", msg, false) }
func (s *memSink) Info(msg string, _ ...log.Field)  { s.add("info", msg, false) }
func (s *memSink) Warn(msg string, _ ...log.Field)  { s.add("warn", msg, false) }
func (s *memSink) Error(msg string, _ ...log.Field) { s.add("error", msg, false) }
func (s *memSink) AppLine(line string)              { s.add("info", line, true) }

func (s *memSink) snapshot() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entry(nil), s.entries...)
}

func (s *memSink) lifecycle() []entry {
	var out []entry
	for _, e := range s.snapshot() {
		switch e.msg {
		case msgLaunching, msgRestarting:
			out = append(out, e)
		}
	}
	return out
}

const (
	msgLaunching  = "launching application"
	msgRestarting = "application stopped, restarting"
)

// flakyApp writes a script that exits immediately failures times, then
// blocks. Each run appends its number to the returned counter file.
func flakyApp(t *testing.T, failures int) (script, counter string) {
	t.Helper()
	dir := t.TempDir()
	counter = filepath.Join(dir, "runs")
	script = filepath.Join(dir, "app.sh")
	body := `#!/bin/sh
n=$(cat "` + counter + `" 2>/dev/null || echo 0)
n=$((n+1))
echo "$n" > "` + counter + `"
echo "run $n"
echo "run $n on stderr" >&2
if [ "$n" -le ` + strconv.Itoa(failures) + ` ]; then exit $n; fi
exec sleep 30
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script, counter
}

func runs(counter string) int {
	b, err := os.ReadFile(counter)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(string(b)))
	return n
}

func startWatchdog(t *testing.T, w *Watchdog) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("watchdog did not stop")
		return nil
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	states []lifecycle.State
}

func (r *recordingEmitter) OnStateChange(_, current lifecycle.State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, current)
}

func (r *recordingEmitter) snapshot() []lifecycle.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lifecycle.State(nil), r.states...)
}

func TestRun_EmitsStateChanges(t *testing.T) {
	emitter := &recordingEmitter{}
	w, err := New(Config{
		Command: []string{"sh", "-c", "exit 1"},
		Policy:  lifecycle.MaxAttempts{Policy: lifecycle.FixedDelay(time.Millisecond), Limit: 1},
	}, &memSink{}, WithEmitter(emitter))
	require.NoError(t, err)

	require.ErrorIs(t, w.Run(context.Background()), domain.ErrRestartsExhausted)
	assert.Equal(t, []lifecycle.State{
		lifecycle.StateLaunching, lifecycle.StateRunning, lifecycle.StateRestarting,
		lifecycle.StateLaunching, lifecycle.StateRunning,
		lifecycle.StateTerminated,
	}, emitter.snapshot())
}

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Config{}, &memSink{})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRun_RestartsEveryExit(t *testing.T) {
	const failures = 3
	const delay = 20 * time.Millisecond
	script, counter := flakyApp(t, failures)
	sink := &memSink{}
	m := metrics.New("")

	w, err := New(Config{
		Command:   []string{"sh", script},
		Policy:    lifecycle.FixedDelay(delay),
		StopGrace: time.Second,
	}, sink, WithMetrics(m))
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	require.Eventually(t, func() bool {
		return runs(counter) == failures+1 && w.State() == lifecycle.StateRunning
	}, 5*time.Second, 5*time.Millisecond)
	// A healthy application is left alone.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, failures+1, runs(counter))

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, lifecycle.StateTerminated, w.State())
	assert.Equal(t, failures, w.Restarts())

	events := sink.lifecycle()
	require.Len(t, events, 2*failures+1)
	for i, e := range events {
		want := msgLaunching
		if i%2 == 1 {
			want = msgRestarting
		}
		assert.Equal(t, want, e.msg, "entry %d", i)
		if i > 0 {
			assert.False(t, e.at.Before(events[i-1].at), "entries out of order")
		}
		if i%2 == 0 && i > 0 {
			assert.GreaterOrEqual(t, e.at.Sub(events[i-1].at), delay, "restart delay not honored")
		}
	}

	all := sink.snapshot()
	assert.Equal(t, "watchdog terminated", all[len(all)-1].msg)
	var app []string
	for _, e := range all {
		if e.app {
			app = append(app, e.msg)
		}
	}
	for n := 1; n <= failures+1; n++ {
		assert.Contains(t, app, "run "+strconv.Itoa(n))
		assert.Contains(t, app, "run "+strconv.Itoa(n)+" on stderr")
	}

	expected := `
# HELP adris_watchdog_launches_total Total number of application launch attempts
# TYPE adris_watchdog_launches_total counter
adris_watchdog_launches_total 4
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "adris_watchdog_launches_total"))
}

func TestRun_LongOutputLineKeepsApplicationRunning(t *testing.T) {
	sink := &memSink{}
	w, err := New(Config{
		Command:   []string{"sh", "-c", `head -c 2000000 /dev/zero | tr '\0' x; echo; echo "after long line"; exec sleep 30`},
		Policy:    lifecycle.FixedDelay(10 * time.Millisecond),
		StopGrace: time.Second,
	}, sink)
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	require.Eventually(t, func() bool {
		for _, e := range sink.snapshot() {
			if e.app && e.msg == "after long line" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, 0, w.Restarts(), "application was killed by its own output")

	var long int
	for _, e := range sink.snapshot() {
		if e.app && strings.HasPrefix(e.msg, "xxxx") {
			assert.LessOrEqual(t, len(e.msg), maxAppLine)
			long += len(e.msg)
		}
	}
	assert.Equal(t, 2_000_000, long)
}

func TestRun_SpawnFailureCountsAsExit(t *testing.T) {
	sink := &memSink{}
	w, err := New(Config{
		Command: []string{filepath.Join(t.TempDir(), "missing-app")},
		Policy:  lifecycle.MaxAttempts{Policy: lifecycle.FixedDelay(time.Millisecond), Limit: 2},
	}, sink)
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrRestartsExhausted)
	assert.Equal(t, lifecycle.StateTerminated, w.State())

	var launches, failures int
	for _, e := range sink.snapshot() {
		switch e.msg {
		case msgLaunching:
			launches++
		case "application spawn failed":
			failures++
		}
	}
	assert.Equal(t, 3, launches)
	assert.Equal(t, 3, failures)
}

func TestRun_TerminationStopsChild(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")
	sink := &memSink{}
	w, err := New(Config{
		Command:   []string{"sh", "-c", `echo $$ > "$PID_FILE"; exec sleep 30`},
		Env:       []string{"PID_FILE=" + pidFile},
		Policy:    lifecycle.FixedDelay(time.Second),
		StopGrace: time.Second,
	}, sink)
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	var pid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
		return err == nil && pid > 0
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.False(t, procgroup.Alive(pid), "application must be stopped")
	assert.Equal(t, 0, w.Restarts())
}

func TestRun_CancelDuringDelay(t *testing.T) {
	sink := &memSink{}
	w, err := New(Config{
		Command: []string{"sh", "-c", "exit 0"},
		Policy:  lifecycle.FixedDelay(time.Hour),
	}, sink)
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	require.Eventually(t, func() bool { return w.State() == lifecycle.StateRestarting }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, lifecycle.StateTerminated, w.State())
}

func TestRun_AlreadyRunning(t *testing.T) {
	w, err := New(Config{
		Command: []string{"sh", "-c", "exec sleep 30"},
		Policy:  lifecycle.FixedDelay(time.Second),
	}, &memSink{})
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	require.Eventually(t, func() bool { return w.State() == lifecycle.StateRunning }, 5*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, w.Run(context.Background()), domain.ErrAlreadyRunning)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestRun_DurableLog(t *testing.T) {
	script, counter := flakyApp(t, 1)
	logDir := filepath.Join(t.TempDir(), "logs")
	sink, err := eventlog.Open(logDir)
	require.NoError(t, err)

	w, err := New(Config{
		Command:   []string{"sh", script},
		Policy:    lifecycle.FixedDelay(10 * time.Millisecond),
		StopGrace: time.Second,
	}, sink)
	require.NoError(t, err)

	cancel, done := startWatchdog(t, w)
	require.Eventually(t, func() bool {
		return runs(counter) == 2 && w.State() == lifecycle.StateRunning
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	require.NoError(t, sink.Close())

	f, err := os.Open(filepath.Join(logDir, eventlog.FileName))
	require.NoError(t, err)
	defer f.Close()

	// Strip timestamps and levels; keep the message order.
	var order []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		for _, want := range []string{msgLaunching, "run 1 stream=app", msgRestarting, "run 2 stream=app", "watchdog terminated"} {
			if strings.Contains(line, want) {
				order = append(order, want)
			}
		}
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{
		msgLaunching, "run 1 stream=app", msgRestarting,
		msgLaunching, "run 2 stream=app",
		"watchdog terminated",
	}, order)
}
