package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joelkehle/trendsim/internal/httpapi"
	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/telemetry"
	"github.com/joelkehle/trendsim/internal/warmer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveNoWarm bool
	serveNoPDF  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the simulation and scenario API, Prometheus metrics and, unless
disabled, the cron job that keeps last-known lifecycle and risk snapshots warm
for every stored trend.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoWarm, "no-warm", false, "Disable the snapshot warmer")
	serveCmd.Flags().BoolVar(&serveNoPDF, "no-pdf", false, "Disable PDF report rendering")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	d, err := openDeps(cfg, true)
	if err != nil {
		return err
	}
	defer d.close()

	if !serveNoWarm && cfg.Warmer.Schedule != "" {
		w := warmer.New(d.store, d.sources.Lifecycle, d.sources.Risk, d.reg)
		if err := w.Register(cfg.Warmer.Schedule); err != nil {
			return fmt.Errorf("warmer schedule: %w", err)
		}
		w.Start()
		defer w.Stop()
	}

	var pdf httpapi.PDFRenderer
	if !serveNoPDF {
		pdf = report.NewPDFRenderer()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewServer(d.runner, pdf, d.reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("trendsim listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
