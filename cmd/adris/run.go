package main

import (
	"github.com/spf13/cobra"

	"github.com/adris-vision/adris/internal/cliconfig"
	"github.com/adris-vision/adris/internal/launcher"
	"github.com/adris-vision/adris/pkg/log"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the publisher, dashboard and inference processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			publish, err := a.selfCommand("publish")
			if err != nil {
				return err
			}

			a.log.Info().
				Str("published", cfg.PublishedPath).
				Str("frame_dir", cfg.FrameDir).
				Msg("starting application")

			l := launcher.New(launcher.Config{
				Children: []launcher.Child{
					{
						Name:      "publisher",
						Command:   publish,
						Env:       cliconfig.ExportEnv(cfg),
						ReadyFile: cfg.PublishedPath,
					},
					{Name: "dashboard", Command: cliconfig.SplitCommand(cfg.DashboardCommand)},
					{
						Name:      "inference",
						Command:   cliconfig.SplitCommand(cfg.InferenceCommand),
						ReadyFile: cfg.InferenceReadyFile,
					},
				},
				StopGrace:    cfg.StopGrace,
				ReadyTimeout: cfg.ReadyTimeout,
			}, log.With(log.NewZerologAdapterWithLogger(a.log), log.String("component", "launcher")))
			return l.Run(cmd.Context())
		},
	}
}
