package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericksa/ptextract/internal/server"
	"github.com/ericksa/ptextract/internal/storage"
	"github.com/ericksa/ptextract/pkg/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload page, run history and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger
			media, err := storage.NewMedia(cfg.Extractor.Media.Root)
			if err != nil {
				return err
			}
			svc, err := ctx.pipeline()
			if err != nil {
				return err
			}
			runs, err := ctx.historyStore()
			if err != nil {
				return err
			}

			deps := server.Deps{
				Config:     cfg,
				ConfigPath: ctx.configPath(),
				Media:      media,
				Processor:  svc,
				Runs:       runs,
				Logger:     log.Named("http"),
			}
			if !noMCP {
				deps.MCP = mcp.NewHandler(svc, media.Root(), log.Named("mcp"))
			}

			s := cfg.Extractor.Server
			srv := &http.Server{
				Addr:         s.Addr,
				Handler:      server.New(deps).Router(),
				ReadTimeout:  s.ReadTimeout,
				WriteTimeout: s.WriteTimeout,
				IdleTimeout:  s.IdleTimeout,
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("starting payment term extractor", zap.String("addr", s.Addr), zap.String("media", media.Root()))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-runCtx.Done():
			}

			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Do not mount the MCP endpoint at /mcp")
	return cmd
}
