package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	LogLevel      string `toml:"log_level"`
	FrameDir      string `toml:"frame_dir"`
	FramePrefix   string `toml:"frame_prefix"`
	FrameExt      string `toml:"frame_ext"`
	PublishedPath string `toml:"published_path"`
	LogDir        string `toml:"log_dir"`
	MetricsFile   string `toml:"metrics_file"`

	CaptureBin   string `toml:"capture_bin"`
	SensorID     int    `toml:"sensor_id"`
	SourceWidth  int    `toml:"source_width"`
	SourceHeight int    `toml:"source_height"`
	Framerate    int    `toml:"framerate"`
	OutputSize   int    `toml:"output_size"`
	JPEGQuality  int    `toml:"jpeg_quality"`
	MaxFiles     int    `toml:"max_files"`

	PollInterval string `toml:"poll_interval"`
	StaleAfter   string `toml:"stale_after"`
	StopGrace    string `toml:"stop_grace"`

	RestartDelay    string `toml:"restart_delay"`
	RestartMaxDelay string `toml:"restart_max_delay"`
	MaxRestarts     int    `toml:"max_restarts"`
	AppCommand      string `toml:"app_command"`

	DashboardCommand   string `toml:"dashboard_command"`
	InferenceCommand   string `toml:"inference_command"`
	InferenceReadyFile string `toml:"inference_ready_file"`
	ReadyTimeout       string `toml:"ready_timeout"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.adris/config.toml, or "" when the home
// directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".adris", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("frame-dir", fc.FrameDir, &cfg.FrameDir)
	s.setString("frame-prefix", fc.FramePrefix, &cfg.FramePrefix)
	s.setString("frame-ext", fc.FrameExt, &cfg.FrameExt)
	s.setString("published-path", fc.PublishedPath, &cfg.PublishedPath)
	s.setString("log-dir", fc.LogDir, &cfg.LogDir)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)
	s.setString("capture-bin", fc.CaptureBin, &cfg.CaptureBin)
	s.setString("app-command", fc.AppCommand, &cfg.AppCommand)
	s.setString("dashboard-command", fc.DashboardCommand, &cfg.DashboardCommand)
	s.setString("inference-command", fc.InferenceCommand, &cfg.InferenceCommand)
	s.setString("inference-ready-file", fc.InferenceReadyFile, &cfg.InferenceReadyFile)

	s.setInt("sensor-id", fc.SensorID, &cfg.SensorID)
	s.setInt("source-width", fc.SourceWidth, &cfg.SourceWidth)
	s.setInt("source-height", fc.SourceHeight, &cfg.SourceHeight)
	s.setInt("framerate", fc.Framerate, &cfg.Framerate)
	s.setInt("output-size", fc.OutputSize, &cfg.OutputSize)
	s.setInt("jpeg-quality", fc.JPEGQuality, &cfg.JPEGQuality)
	s.setInt("max-files", fc.MaxFiles, &cfg.MaxFiles)
	s.setInt("max-restarts", fc.MaxRestarts, &cfg.MaxRestarts)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"poll", fc.PollInterval, &cfg.PollInterval},
		{"stale-after", fc.StaleAfter, &cfg.StaleAfter},
		{"stop-grace", fc.StopGrace, &cfg.StopGrace},
		{"restart-delay", fc.RestartDelay, &cfg.RestartDelay},
		{"restart-max-delay", fc.RestartMaxDelay, &cfg.RestartMaxDelay},
		{"ready-timeout", fc.ReadyTimeout, &cfg.ReadyTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	return nil
}
