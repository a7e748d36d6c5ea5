package cliconfig

import (
	"os"
	"strconv"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "ADRIS_"

// ApplyEnvConfig applies configuration from environment variables (ADRIS_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("frame-dir", env("FRAME_DIR"), &cfg.FrameDir)
	s.setString("frame-prefix", env("FRAME_PREFIX"), &cfg.FramePrefix)
	s.setString("frame-ext", env("FRAME_EXT"), &cfg.FrameExt)
	s.setString("published-path", env("PUBLISHED_PATH"), &cfg.PublishedPath)
	s.setString("log-dir", env("LOG_DIR"), &cfg.LogDir)
	s.setString("metrics-file", env("METRICS_FILE"), &cfg.MetricsFile)
	s.setString("capture-bin", env("CAPTURE_BIN"), &cfg.CaptureBin)
	s.setString("app-command", env("APP_COMMAND"), &cfg.AppCommand)
	s.setString("dashboard-command", env("DASHBOARD_COMMAND"), &cfg.DashboardCommand)
	s.setString("inference-command", env("INFERENCE_COMMAND"), &cfg.InferenceCommand)
	s.setString("inference-ready-file", env("INFERENCE_READY_FILE"), &cfg.InferenceReadyFile)

	ints := []struct {
		flag string
		name string
		dst  *int
	}{
		{"sensor-id", "SENSOR_ID", &cfg.SensorID},
		{"source-width", "SOURCE_WIDTH", &cfg.SourceWidth},
		{"source-height", "SOURCE_HEIGHT", &cfg.SourceHeight},
		{"framerate", "FRAMERATE", &cfg.Framerate},
		{"output-size", "OUTPUT_SIZE", &cfg.OutputSize},
		{"jpeg-quality", "JPEG_QUALITY", &cfg.JPEGQuality},
		{"max-files", "MAX_FILES", &cfg.MaxFiles},
		{"max-restarts", "MAX_RESTARTS", &cfg.MaxRestarts},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.name), i.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("poll", env("POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("stale-after", env("STALE_AFTER"), &cfg.StaleAfter); err != nil {
		return err
	}
	if err := s.setDuration("stop-grace", env("STOP_GRACE"), &cfg.StopGrace); err != nil {
		return err
	}
	if err := s.setDuration("restart-delay", env("RESTART_DELAY"), &cfg.RestartDelay); err != nil {
		return err
	}
	if err := s.setDuration("restart-max-delay", env("RESTART_MAX_DELAY"), &cfg.RestartMaxDelay); err != nil {
		return err
	}
	if err := s.setDuration("ready-timeout", env("READY_TIMEOUT"), &cfg.ReadyTimeout); err != nil {
		return err
	}

	return nil
}

// ExportEnv renders the publisher settings of cfg as ADRIS_* assignments so
// a child started with "publish" resolves the same configuration as its
// parent regardless of which flags the parent was given.
func ExportEnv(cfg Config) []string {
	kv := [][2]string{
		{"LOG_LEVEL", cfg.LogLevel},
		{"FRAME_DIR", cfg.FrameDir},
		{"FRAME_PREFIX", cfg.FramePrefix},
		{"FRAME_EXT", cfg.FrameExt},
		{"PUBLISHED_PATH", cfg.PublishedPath},
		{"METRICS_FILE", cfg.MetricsFile},
		{"CAPTURE_BIN", cfg.CaptureBin},
		{"SENSOR_ID", strconv.Itoa(cfg.SensorID)},
		{"SOURCE_WIDTH", strconv.Itoa(cfg.SourceWidth)},
		{"SOURCE_HEIGHT", strconv.Itoa(cfg.SourceHeight)},
		{"FRAMERATE", strconv.Itoa(cfg.Framerate)},
		{"OUTPUT_SIZE", strconv.Itoa(cfg.OutputSize)},
		{"JPEG_QUALITY", strconv.Itoa(cfg.JPEGQuality)},
		{"MAX_FILES", strconv.Itoa(cfg.MaxFiles)},
		{"POLL_INTERVAL", cfg.PollInterval.String()},
		{"STALE_AFTER", cfg.StaleAfter.String()},
		{"STOP_GRACE", cfg.StopGrace.String()},
	}
	env := make([]string, 0, len(kv))
	for _, p := range kv {
		if p[1] == "" {
			continue
		}
		env = append(env, EnvPrefix+p[0]+"="+p[1])
	}
	return env
}
