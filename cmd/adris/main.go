package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/adris-vision/adris/internal/cliconfig"
)

const helpDescription = `
Capture camera frames on a Jetson and keep the newest one available at a
fixed path for any number of readers.

Commands:
  publish   run the capture pipeline and atomically republish its newest frame
  run       start the publisher plus the optional dashboard and inference apps
  watchdog  keep "run" (or app_command) alive forever, logging to log_dir

Configure via $HOME/.adris/config.toml, ADRIS_* environment variables or flags.
`

var exampleUsage = strings.TrimSpace(`
  adris watchdog --log-dir /var/log/adris
  adris run --dashboard-command "python3 dashboard/dashboard_server.py"
  adris publish --frame-dir /dev/shm/adris --published-path /dev/shm/adris_latest.jpg
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved configuration to subcommands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

func main() {
	a := &app{cfg: cliconfig.DefaultConfig()}
	a.log = cliconfig.Logger(a.cfg.LogLevel)

	root := &cobra.Command{
		Use:           "adris",
		Short:         "Camera frame publisher and application watchdog",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	a.bindFlags(root.PersistentFlags())
	root.AddCommand(a.publishCmd(), a.runCmd(), a.watchdogCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("adris")
		os.Exit(1)
	}
}

// loadConfig layers defaults < TOML file < ADRIS_* env < changed flags.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.log = cliconfig.Logger(a.cfg.LogLevel)
	a.log.Debug().Interface("config", a.cfg).Str("command", cmd.Name()).Msg("configuration")
	return nil
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	cfg := &a.cfg
	fs.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.adris/config.toml)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	fs.StringVar(&cfg.FrameDir, "frame-dir", cfg.FrameDir, "directory the capture pipeline writes numbered frames to")
	fs.StringVar(&cfg.FramePrefix, "frame-prefix", cfg.FramePrefix, "numbered frame file name prefix")
	fs.StringVar(&cfg.FrameExt, "frame-ext", cfg.FrameExt, "numbered frame file extension")
	fs.StringVar(&cfg.PublishedPath, "published-path", cfg.PublishedPath, "fixed path the newest frame is published to")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "watchdog log directory")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "node_exporter textfile for metrics (empty disables)")

	fs.StringVar(&cfg.CaptureBin, "capture-bin", cfg.CaptureBin, "capture pipeline executable")
	fs.IntVar(&cfg.SensorID, "sensor-id", cfg.SensorID, "camera sensor id")
	fs.IntVar(&cfg.SourceWidth, "source-width", cfg.SourceWidth, "sensor capture width")
	fs.IntVar(&cfg.SourceHeight, "source-height", cfg.SourceHeight, "sensor capture height")
	fs.IntVar(&cfg.Framerate, "framerate", cfg.Framerate, "capture frame rate")
	fs.IntVar(&cfg.OutputSize, "output-size", cfg.OutputSize, "edge length of the square published image")
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG encoder quality (1-100)")
	fs.IntVar(&cfg.MaxFiles, "max-files", cfg.MaxFiles, "numbered frames kept on disk by the capture pipeline")

	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "publish cycle interval")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "warn when the newest frame is older than this (0 disables)")
	fs.DurationVar(&cfg.StopGrace, "stop-grace", cfg.StopGrace, "time children get to exit after SIGTERM")

	fs.DurationVar(&cfg.RestartDelay, "restart-delay", cfg.RestartDelay, "delay before restarting the application")
	fs.DurationVar(&cfg.RestartMaxDelay, "restart-max-delay", cfg.RestartMaxDelay, "exponential backoff cap (0 keeps the delay fixed)")
	fs.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "give up after this many restarts (0 restarts forever)")
	fs.StringVar(&cfg.AppCommand, "app-command", cfg.AppCommand, `application command line (default: this binary's "run")`)

	fs.StringVar(&cfg.DashboardCommand, "dashboard-command", cfg.DashboardCommand, "dashboard command line (optional)")
	fs.StringVar(&cfg.InferenceCommand, "inference-command", cfg.InferenceCommand, "inference command line (optional)")
	fs.StringVar(&cfg.InferenceReadyFile, "inference-ready-file", cfg.InferenceReadyFile, "file the inference app writes once it runs (optional)")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "how long to wait for the first published frame")
}

// selfCommand returns argv re-invoking this binary with sub, forwarding an
// explicit --config.
func (a *app) selfCommand(sub string) ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	argv := []string{exe, sub}
	if a.cfgPath != "" {
		argv = append(argv, "--config", a.cfgPath)
	}
	return argv, nil
}
