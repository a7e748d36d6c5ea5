package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adris-vision/adris/internal/domain"
)

// Config holds CLI configuration for all adris subcommands.
type Config struct {
	LogLevel string

	// Shared filesystem layout.
	FrameDir      string
	FramePrefix   string
	FrameExt      string
	PublishedPath string
	LogDir        string
	MetricsFile   string

	// Capture pipeline parameters. These are handed to the external tool
	// verbatim and define the published image contract.
	CaptureBin   string
	SensorID     int
	SourceWidth  int
	SourceHeight int
	Framerate    int
	OutputSize   int
	JPEGQuality  int
	MaxFiles     int

	// Publisher.
	PollInterval time.Duration
	StaleAfter   time.Duration
	StopGrace    time.Duration

	// Watchdog.
	RestartDelay    time.Duration
	RestartMaxDelay time.Duration
	MaxRestarts     int
	AppCommand      string

	// Launcher.
	DashboardCommand   string
	InferenceCommand   string
	InferenceReadyFile string
	ReadyTimeout       time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		FrameDir:      "/dev/shm/adris",
		FramePrefix:   "frame_",
		FrameExt:      ".jpg",
		PublishedPath: "/dev/shm/adris_latest.jpg",
		LogDir:        "logs",
		CaptureBin:    "gst-launch-1.0",
		SourceWidth:   1920,
		SourceHeight:  1080,
		Framerate:     30,
		OutputSize:    640,
		JPEGQuality:   85,
		MaxFiles:      3,
		PollInterval:  20 * time.Millisecond,
		StopGrace:     5 * time.Second,
		RestartDelay:  3 * time.Second,
		ReadyTimeout:  6 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.FrameDir == "" {
		return fmt.Errorf("frame-dir is required")
	}
	if c.PublishedPath == "" {
		return fmt.Errorf("published-path is required")
	}
	if c.FramePrefix == "" && c.FrameExt == "" {
		return fmt.Errorf("frame prefix or extension is required")
	}
	if c.CaptureBin == "" {
		return fmt.Errorf("capture-bin is required")
	}
	if c.SourceWidth <= 0 || c.SourceHeight <= 0 {
		return fmt.Errorf("source resolution must be positive")
	}
	if c.OutputSize <= 0 {
		return fmt.Errorf("output size must be positive")
	}
	if c.OutputSize > c.SourceWidth || c.OutputSize > c.SourceHeight {
		return fmt.Errorf("output size %d exceeds source %dx%d", c.OutputSize, c.SourceWidth, c.SourceHeight)
	}
	if c.Framerate <= 0 {
		return fmt.Errorf("framerate must be positive")
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be within 1..100")
	}
	if c.MaxFiles < 1 {
		return fmt.Errorf("max-files must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("stale-after must not be negative")
	}
	if c.StopGrace <= 0 {
		return fmt.Errorf("stop grace must be positive")
	}
	if c.RestartDelay <= 0 {
		return fmt.Errorf("restart delay must be positive")
	}
	if c.RestartMaxDelay != 0 && c.RestartMaxDelay < c.RestartDelay {
		return fmt.Errorf("restart max delay must be >= restart delay")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative")
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("ready timeout must be positive")
	}
	return nil
}

// FramePattern returns the naming scheme of numbered frames.
func (c *Config) FramePattern() domain.FramePattern {
	return domain.NewFramePattern(c.FramePrefix, c.FrameExt)
}

// SplitCommand splits a whitespace separated command line into argv.
// Quoting is not supported; wrap complex commands in a script.
func SplitCommand(cmd string) []string {
	return strings.Fields(cmd)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
