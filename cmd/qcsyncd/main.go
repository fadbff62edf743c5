package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qcsync/internal/app"
	"qcsync/internal/qc"
	"qcsync/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "qcsyncd",
	Short:        "Reference sync server for qc devices",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept sync batches over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		dsn, _ := cmd.Flags().GetString("dsn")
		products, _ := cmd.Flags().GetStringSlice("product")
		level, _ := cmd.Flags().GetString("log-level")

		if dsn == "" {
			dsn = os.Getenv("QC_SERVER_DSN")
		}

		runID := app.NewInvocation("Serve", time.Now()).ID
		logger, err := app.NewConsoleLogger(level, runID, os.Stderr)
		if err != nil {
			return err
		}

		var ledger server.Ledger
		if dsn == "" {
			logger.Warn("no dsn configured, accepted entries are kept in memory only")
			ledger = server.NewMemoryLedger(qc.RealClock{}, qc.UUIDGenerator{})
		} else {
			gl, err := server.OpenGormLedger(dsn, qc.RealClock{}, qc.UUIDGenerator{})
			if err != nil {
				return err
			}
			defer gl.Close()
			ledger = gl
		}

		srv := &http.Server{
			Addr:              listen,
			Handler:           server.NewRouter(server.New(ledger, products, logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", listen, "catalog_size", len(products))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "Address to listen on")
	serveCmd.Flags().String("dsn", "", "PostgreSQL DSN for the ledger (default: in-memory, or $QC_SERVER_DSN)")
	serveCmd.Flags().StringSlice("product", nil, "Known product ID; repeat to build a catalog (default: accept any)")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
}
