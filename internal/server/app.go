// Package server wires configuration, the credential store and the auth use
// cases together and runs the HTTP API and gRPC health endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *repomanager.Store
	service *services.AuthService
	http    *fiber.App
}

// NewNotifier picks the SMTP relay when one is configured.
func NewNotifier(c *config.Config, logger logging.Logger) notify.Notifier {
	if c.SMTPHost == "" {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	}, logger)
}

// NewAuthService builds the use case layer over repo from configuration.
func NewAuthService(c *config.Config, repo users.Repository, notifier notify.Notifier, logger logging.Logger) (*services.AuthService, error) {
	hasher, err := cryptox.NewPasswordHasher(c.PasswordHashAlgorithm, c.PasswordHashCost)
	if err != nil {
		return nil, err
	}
	issuer := auth.NewTokenIssuer([]byte(c.SecretKey), c.SessionTokenValidityDuration)
	resets := services.NewResetTokenManager(repo, c.ResetTokenValidityDuration)
	return services.NewAuthService(repo, hasher, issuer, resets, notifier, c, logger), nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := c.Validate(); err != nil {
		return nil, err
	}

	store, err := repomanager.Open(ctx, c.DatabaseDSN, true)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	svc, err := NewAuthService(c, store.Users, NewNotifier(c, logger), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewAuthMetrics()
	m.Register(reg)
	svc.WithMetrics(m)

	httpApp := httpapi.NewApp(svc, httpapi.Options{
		AllowOrigins:   c.FrontendURL,
		RequestTimeout: c.RequestTimeout,
		Gatherer:       reg,
	}, logger)

	logger.Info(ctx, "credential store ready", "backend", store.Backend)

	return &App{config: c, logger: logger, store: store, service: svc, http: httpApp}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.service)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		if err := app.http.Shutdown(); err != nil {
			app.logger.Error(ctx, "http shutdown failed", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := app.http.Listen(app.config.EndpointAddrHTTP); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives, then closes the store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close store: %w", err)
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}
