// Package eventlog is the watchdog's durable, append-only log sink. Every
// line is "<timestamp> <LEVEL> <message> key=value..." with a UTC,
// millisecond precision, lexically sortable timestamp.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adris-vision/adris/internal/domain"
	"github.com/adris-vision/adris/pkg/log"
)

// TimeLayout is the timestamp format of every line.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FileName is the log file created inside the log directory.
const FileName = "watchdog.log"

// StreamApp tags lines captured from the supervised application.
const StreamApp = "app"

// Option configures a Log.
type Option func(*options)

type options struct {
	now    func() time.Time
	mirror io.Writer
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMirror also writes every line to w, typically stderr.
func WithMirror(w io.Writer) Option {
	return func(o *options) { o.mirror = w }
}

// Log appends lifecycle events and captured application output to a file.
// It is safe for concurrent use.
type Log struct {
	*log.ZerologAdapter

	path string
	file *os.File
}

// Open creates dir if needed and opens dir/watchdog.log for appending.
func Open(dir string, opts ...Option) (*Log, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLogDirUnavailable, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLogDirUnavailable, err)
	}

	var out io.Writer = newLineWriter(f)
	if o.mirror != nil {
		out = zerolog.MultiLevelWriter(out, newLineWriter(o.mirror))
	}
	logger := zerolog.New(zerolog.SyncWriter(out)).
		Level(zerolog.DebugLevel).
		Hook(clockHook{now: o.now})

	return &Log{
		ZerologAdapter: log.NewZerologAdapterWithLogger(logger),
		path:           path,
		file:           f,
	}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// AppLine appends one line of application output.
func (l *Log) AppLine(line string) {
	l.Info(strings.TrimRight(line, "\r\n"), log.String("stream", StreamApp))
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// clockHook stamps events at emit time so the console renderer sees the
// exact instant with millisecond precision.
type clockHook struct {
	now func() time.Time
}

func (h clockHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(zerolog.TimestampFieldName, h.now().UTC().Format(TimeLayout))
}

func newLineWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:     w,
		NoColor: true,
		FormatTimestamp: func(i interface{}) string {
			s, _ := i.(string)
			return s
		},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return strings.ToUpper(s)
		},
	}
}
