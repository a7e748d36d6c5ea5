package main

import (
	"github.com/spf13/cobra"

	"github.com/adris-vision/adris/internal/capture"
	"github.com/adris-vision/adris/internal/metrics"
	"github.com/adris-vision/adris/internal/publisher"
	"github.com/adris-vision/adris/pkg/log"
)

func (a *app) publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Run the capture pipeline and republish its newest frame atomically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			base := log.NewZerologAdapterWithLogger(a.log)
			logger := log.With(base, log.String("component", "publisher"))
			pattern := cfg.FramePattern()

			p := publisher.New(publisher.Config{
				FrameDir:      cfg.FrameDir,
				Pattern:       pattern,
				PublishedPath: cfg.PublishedPath,
				PollInterval:  cfg.PollInterval,
				StaleAfter:    cfg.StaleAfter,
				StopGrace:     cfg.StopGrace,
				CaptureBin:    cfg.CaptureBin,
				Capture: capture.Params{
					SensorID:     cfg.SensorID,
					SourceWidth:  cfg.SourceWidth,
					SourceHeight: cfg.SourceHeight,
					Framerate:    cfg.Framerate,
					OutputSize:   cfg.OutputSize,
					JPEGQuality:  cfg.JPEGQuality,
					MaxFiles:     cfg.MaxFiles,
					Location:     pattern.Location(cfg.FrameDir),
				},
				CheckJPEG: publisher.IsJPEG(cfg.FrameExt),
			},
				capture.NewGStreamer(cfg.CaptureBin, log.With(base, log.String("component", "capture"))),
				publisher.WithLogger(logger),
				publisher.WithMetrics(metrics.New(cfg.MetricsFile)),
			)
			return p.Run(cmd.Context())
		},
	}
}
