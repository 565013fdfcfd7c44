package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crycare/cry-pipeline/metrics"
	"github.com/crycare/cry-pipeline/orchestrator"
	"github.com/crycare/cry-pipeline/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				conf.Server.Addr = addr
			}
			bundle, err := ctx.models()
			if err != nil {
				return err
			}

			prov, err := metrics.NewProvider()
			if err != nil {
				return fmt.Errorf("metrics provider: %w", err)
			}
			defer prov.Shutdown(context.Background())
			met, err := metrics.NewMetrics(prov)
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}

			p, err := orchestrator.NewPipeline(conf, bundle,
				orchestrator.WithLogger(ctx.log()),
				orchestrator.WithMetrics(met),
			)
			if err != nil {
				return err
			}
			store, err := ctx.history()
			if err != nil {
				return err
			}

			fp, _ := bundle.Fingerprint()
			srv := server.New(conf, p, store,
				server.WithLogger(ctx.log()),
				server.WithMetrics(met, prov.Handler()),
				server.WithModelVersion(bundle.Manifest.Version+"+"+fp),
			)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
