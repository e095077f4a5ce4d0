package cli

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
	"go.uber.org/zap"

	"github.com/lazypower/attention/internal/server"
)

var auditInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&auditInterval, "audit", 10*time.Minute, "interval between consistency audits (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.DB.Close()

	if auditInterval > 0 {
		eng.StartAuditTimer(auditInterval)
	}
	defer eng.Stop()

	srv := server.New(eng, VersionString(), logger)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("attention serving",
			zap.String("addr", addr),
			zap.String("db", eng.DB.Path),
			zap.Int("contexts", len(eng.Contexts())),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
