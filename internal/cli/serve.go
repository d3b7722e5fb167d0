package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cashback/internal/api"
	"cashback/pkg/factory"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "", "Listen port, overrides SERVER_PORT")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Apply migrations, start the event intake workers and serve the HTTP
API until SIGINT or SIGTERM. Shutdown drains in-flight requests and queued
events before connections are closed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := newFactory(ctx)
	if err != nil {
		return err
	}

	log := f.GetLogger()
	cfg := f.GetConfig()

	port := cfg.Server.Port
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newHandler(f),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", map[string]interface{}{
			"port":    port,
			"env":     cfg.AppEnv,
			"version": Version,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			_ = f.Close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down", map[string]interface{}{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := f.Close(shutdownCtx); err != nil {
		log.Error("Resources could not be released", map[string]interface{}{"error": err.Error()})
		return err
	}

	log.Info("Server stopped", map[string]interface{}{})
	return nil
}

func newHandler(f factory.Factory) http.Handler {
	log := f.GetLogger()
	cfg := f.GetConfig()
	query := f.GetBalanceQuery()
	events := f.GetEventIntakeService()

	return api.NewRouter(api.Handlers{
		Ledger:         api.NewLedgerHandler(f.GetLedgerService(), log),
		Balances:       api.NewBalanceHandler(query, log),
		Admin:          api.NewAdminHandler(query, log),
		Reimbursements: api.NewReimbursementHandler(f.GetReimbursementService(), log),
		Stores:         api.NewStoreHandler(f.GetStoreService(), log),
		Events:         api.NewEventHandler(events, log),
		AuditLogs:      api.NewAuditLogHandler(f.GetAuditLogService(), log),
		Cache:          api.NewCacheHandler(f.GetCache(), f.GetWarmUpManager(), log),
		Health:         api.NewHealthHandler(f.GetConnectionManager(), f.GetCache(), events, Version, log),
	}, api.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.Timeout,
	}, log)
}
