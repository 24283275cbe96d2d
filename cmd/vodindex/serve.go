package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vodindex/internal/api"
	"github.com/zsiec/vodindex/internal/fetch"
	"github.com/zsiec/vodindex/internal/manifest"
	"github.com/zsiec/vodindex/internal/metrics"
)

func newServeCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the manifest API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg

			fetcher, err := fetch.New(fetch.Config{
				Scheme:   cfg.Delivery.Scheme,
				Origin:   cfg.Delivery.Origin,
				HTTP3:    cfg.Delivery.HTTP3,
				Timeout:  cfg.Delivery.Timeout,
				MaxBytes: cfg.Delivery.MaxBytes,
			}, nil)
			if err != nil {
				return err
			}
			defer fetcher.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			asm := manifest.NewAssembler(manifest.Config{
				Scheme:             cfg.Delivery.Scheme,
				RejectedAudioXTags: cfg.Formats.RejectedAudioXTags,
			}, fetcher, metrics.New(reg), nil)

			srv := api.NewServer(api.Config{
				Addr:         cfg.Server.Addr,
				VideoEnabled: cfg.Playback.VideoEnabled,
				Gatherer:     reg,
			}, asm, nil)

			slog.Info("vodindex starting",
				"version", version,
				"api", cfg.Server.Addr,
				"origin", cfg.Delivery.Origin,
				"http3", cfg.Delivery.HTTP3,
			)

			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Start(gctx)
			})
			err = g.Wait()
			slog.Info("vodindex stopped")
			return err
		},
	}
}
