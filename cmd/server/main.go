package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"github.com/padmasuda/expensetracker/internal/backend"
	"github.com/padmasuda/expensetracker/internal/config"
	"github.com/padmasuda/expensetracker/internal/handlers"
	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/session"
	"github.com/padmasuda/expensetracker/web"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close backend")
		}
	}()
	logger.WithField("backend", cfg.Backend).Info("Backend ready")

	deps := handlers.Deps{
		Expenses:              b.Expenses,
		Users:                 b.Users,
		Templates:             web.Templates(),
		ScopeMutationsToOwner: cfg.ScopeMutationsToOwner,
	}

	if cfg.Profile == config.Persistent {
		if _, err := backend.EnsureAdmin(ctx, b.Users, cfg.AdminUser, cfg.AdminPassword); err != nil {
			return err
		}
		deps.Sessions = session.NewManager(b.Sessions, []byte(cfg.Session.Secret), cfg.Session.Duration, cfg.Session.SecureCookie)
		go deps.Sessions.Sweep(logging.WithEntry(ctx, logger.WithField(logging.FieldComponent, "session-sweep")), cfg.Session.CleanupInterval)
	}

	h := handlers.NewHandlers(deps)
	mux := setupRouter(h, cfg.Profile, web.Static())

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        withMiddleware(logger, mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "profile": cfg.Profile}).Info("Starting expense tracker server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// setupRouter registers the routes of the given profile.
func setupRouter(h *handlers.Handlers, profile config.Profile, static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	if profile != config.Persistent {
		mux.HandleFunc("GET /{$}", h.Welcome)
		mux.HandleFunc("GET /expenses", h.ListAll)
		mux.HandleFunc("POST /expenses", h.CreateWithDefaults)
		mux.HandleFunc("PUT /expenses/{id}", h.Update)
		mux.HandleFunc("DELETE /expenses/{id}", h.Remove)
		return mux
	}

	sessions := h.Sessions()
	api := func(fn http.HandlerFunc) http.Handler { return sessions.RequireAPI(fn) }

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.Handle("GET /{$}", sessions.RequirePage(http.HandlerFunc(h.Index)))
	mux.Handle("GET /expenses", api(h.ListOwned))
	mux.Handle("POST /expenses", api(h.CreateOwned))
	mux.Handle("POST /expenses/toggle/{id}", api(h.Toggle))
	mux.Handle("DELETE /expenses/{id}", api(h.DeleteOwned))

	return mux
}

// withMiddleware wraps the router with panic recovery and the access log.
func withMiddleware(logger *logrus.Logger, next http.Handler) http.Handler {
	recovered := gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(logger),
		gorillahandlers.PrintRecoveryStack(true),
	)(next)
	return logging.Middleware(logger)(recovered)
}
