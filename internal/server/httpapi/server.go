// Package httpapi exposes AuthService over HTTP with fiber. It only decodes
// requests, maps errors to status codes and encodes responses.
package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const userIDKey = "user_id"

// AuthAPI is the use case surface served by the adapter.
type AuthAPI interface {
	Register(ctx context.Context, name, email, password string) (*models.Profile, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, email, token string) (bool, error)
	ResetPassword(ctx context.Context, email, token, newPassword string) error
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, userID string) (*models.Profile, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Health(ctx context.Context) error
}

// Options tune the adapter.
type Options struct {
	// AllowOrigins is the CORS origin list; the frontend URL in practice.
	AllowOrigins   string
	RequestTimeout time.Duration
	// Gatherer, when set, is served on GET /metrics.
	Gatherer prometheus.Gatherer
}

type Handler struct {
	svc     AuthAPI
	logger  logging.Logger
	timeout time.Duration
}

type response struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Token   string `json:"token,omitempty"`
}

type validResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// NewApp builds the fiber application with all routes registered.
func NewApp(svc AuthAPI, opts Options, logger logging.Logger) *fiber.App {
	h := &Handler{svc: svc, logger: logger.With("module", "httpapi"), timeout: opts.RequestTimeout}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})
	app.Use(recover.New())
	if opts.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,OPTIONS",
		}))
	}

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	g := app.Group("/auth", h.withTimeout)
	g.Get("/", h.Health)
	g.Post("/register", h.Register)
	g.Post("/login", h.Login)
	g.Post("/forgot-password", h.ForgotPassword)
	g.Get("/validate-resetToken/:resetToken", h.ValidateResetToken)
	g.Post("/reset-password", h.ResetPassword)
	g.Get("/user", h.requireSession, h.Profile)
	// the path id is ignored; the profile always comes from the session
	g.Get("/user/:id", h.requireSession, h.Profile)
	g.Post("/logout", h.requireSession, h.Logout)

	return app
}

func (h *Handler) withTimeout(c *fiber.Ctx) error {
	if h.timeout <= 0 {
		return c.Next()
	}
	ctx, cancel := context.WithTimeout(userContext(c), h.timeout)
	defer cancel()
	c.SetUserContext(ctx)
	return c.Next()
}

func (h *Handler) requireSession(c *fiber.Ctx) error {
	header := c.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return h.fail(c, common.ErrorUnauthorized)
	}
	userID, err := h.svc.Authenticate(userContext(c), strings.TrimPrefix(header, common.BearerPrefix))
	if err != nil {
		return h.fail(c, err)
	}
	c.Locals(userIDKey, userID)
	return c.Next()
}

// errorHandler renders fiber's own errors (unknown route, bad method) in
// the common response shape.
func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else {
		h.logger.Error(userContext(c), "unhandled request error", "path", c.Path(), "error", err)
		err = errors.New("internal server error")
	}
	return c.Status(code).JSON(response{Message: err.Error()})
}

// fail maps a use case error to its status and the client-facing message.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status, msg := classify(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Warn(userContext(c), "request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(response{Message: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return fiber.StatusBadRequest, strings.TrimPrefix(err.Error(), common.ErrValidation.Error()+": ")
	case errors.Is(err, common.ErrDuplicate):
		return fiber.StatusConflict, "email or name already exists"
	case errors.Is(err, common.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, common.ErrInvalidCredentials.Error()
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return fiber.StatusBadRequest, common.ErrInvalidOrExpiredToken.Error()
	case errors.Is(err, common.ErrorUnauthorized):
		return fiber.StatusUnauthorized, "authentication required"
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound, "user not found"
	case errors.Is(err, common.ErrServiceUnavailable):
		return fiber.StatusServiceUnavailable, "service temporarily unavailable, please try again later"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func userContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
