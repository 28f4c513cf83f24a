package apiapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phillip-england/timecard/internal/auth"
	"github.com/phillip-england/timecard/internal/config"
	"github.com/phillip-england/timecard/internal/credentials"
	"github.com/phillip-england/timecard/internal/ledger"
	"github.com/phillip-england/timecard/internal/session"
	"github.com/phillip-england/timecard/internal/sheet"
)

// NewFromStore wires the services onto one spreadsheet store.
func NewFromStore(cfg *config.Config, sheets sheet.Store, logger *slog.Logger) (*Server, *credentials.Store, error) {
	creds := credentials.NewStore(sheets, logger)
	sessions, err := session.NewManager(sheets, []byte(cfg.Session.Secret), logger, session.WithTTL(cfg.Session.TTL))
	if err != nil {
		return nil, nil, err
	}
	cards := ledger.New(sheets, logger, ledger.WithExport(cfg.Export.Enabled, cfg.Export.CompanyName))

	srv := New(Deps{
		Ledger:         cards,
		Employees:      creds,
		Auth:           auth.NewAuthenticator(creds, sessions, logger),
		Sessions:       sessions,
		Logger:         logger,
		ManagerRoles:   cfg.Auth.ManagerRoles,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	return srv, creds, nil
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
// When enabled, a watcher rehashes hand-typed passwords in the workbook.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	workbook := sheet.NewWorkbook(cfg.Workbook.Path)
	srv, creds, err := NewFromStore(cfg, workbook, logger)
	if err != nil {
		return err
	}

	if n, err := creds.RehashAll(ctx); err != nil {
		logger.Warn("initial password rehash", slog.Any("error", err))
	} else if n > 0 {
		logger.Info("employee passwords rehashed", slog.Int("count", n))
	}

	if cfg.Watch.Enabled {
		go func() {
			if err := creds.WatchWorkbook(ctx, workbook.Path()); err != nil {
				logger.Error("workbook watcher stopped", slog.Any("error", err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("workbook", workbook.Path()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Info("shutting down api")
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
