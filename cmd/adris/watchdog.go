package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adris-vision/adris/internal/cliconfig"
	"github.com/adris-vision/adris/internal/eventlog"
	"github.com/adris-vision/adris/internal/metrics"
	"github.com/adris-vision/adris/internal/watchdog"
	"github.com/adris-vision/adris/pkg/lifecycle"
)

func (a *app) watchdogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "Keep the application running forever and log every restart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg := a.cfg
			command := cliconfig.SplitCommand(cfg.AppCommand)
			if len(command) == 0 {
				if command, err = a.selfCommand("run"); err != nil {
					return err
				}
			}

			sink, err := eventlog.Open(cfg.LogDir, eventlog.WithMirror(os.Stderr))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := sink.Close(); err == nil {
					err = cerr
				}
			}()

			m := metrics.New(metrics.RolePath(cfg.MetricsFile, "watchdog"))
			w, err := watchdog.New(watchdog.Config{
				Command:   command,
				Policy:    lifecycle.NewPolicy(cfg.RestartDelay, cfg.RestartMaxDelay, cfg.MaxRestarts),
				// The application stops its own children, each with StopGrace.
				StopGrace: 3 * cfg.StopGrace,
			}, sink, watchdog.WithMetrics(m), watchdog.WithEmitter(stateGauge{m}))
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
}

// stateGauge mirrors watchdog state changes into the metrics textfile.
type stateGauge struct {
	m *metrics.Metrics
}

func (g stateGauge) OnStateChange(_, current lifecycle.State, _ string) {
	g.m.SetWatchdogState(strings.ToLower(current.String()))
}
