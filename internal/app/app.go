// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together all plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/config"
	"github.com/quillcms/sudogate/internal/middleware"
	"github.com/quillcms/sudogate/internal/plugins/appkeys"
	"github.com/quillcms/sudogate/internal/plugins/audit"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/elevation"
	"github.com/quillcms/sudogate/internal/plugins/gate"
	"github.com/quillcms/sudogate/internal/plugins/rules"
	"github.com/quillcms/sudogate/internal/plugins/settings"
	"github.com/quillcms/sudogate/internal/plugins/stash"
)

// stashTTL bounds how long an intercepted request stays replayable. Long
// enough to type a password and a TOTP code, short enough that a stale
// stashed mutation can't fire an hour later.
const stashTTL = 15 * time.Minute

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis is the Redis client shared for sessions, elevation state, and
	// the request stash.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Auth resolves host login sessions.
	Auth auth.AuthService

	// Users is the host user repository, shared with the elevation flow.
	Users auth.UserRepository

	// Capabilities detects role capability drift against the baseline.
	Capabilities auth.CapabilityChecker

	// Audit records security events.
	Audit audit.AuditService

	// Settings serves the runtime sudo configuration.
	Settings settings.SettingsService

	// Rules is the ordered gated-action catalog.
	Rules *rules.Registry

	// Elevation is the elevated session state machine.
	Elevation elevation.ElevationService

	// Stash holds intercepted requests pending re-authentication.
	Stash stash.StashService

	// AppKeys manages application passwords for headless API clients.
	AppKeys appkeys.AppKeyService

	// Gate classifies requests and decides pass, block, or redirect.
	Gate *gate.Gate
}

// New creates a new App instance with the given dependencies, wires all
// plugin services, and configures the Echo server with global middleware
// and error handling. Rule contributors extend the built-in gated-action
// catalog; extensions register theirs here at startup.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, contributors ...rules.Contributor) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. Needed for rate limiting and
	// audit logging behind Docker networks.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupServices(contributors)

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupServices constructs the plugin dependency graph: repositories on the
// shared pool, services on top, the gate last since it consumes everything.
func (a *App) setupServices(contributors []rules.Contributor) {
	userRepo := auth.NewUserRepository(a.DB)
	auditRepo := audit.NewEventRepository(a.DB)
	settingsRepo := settings.NewSettingsRepository(a.DB)
	appKeyRepo := appkeys.NewAppPasswordRepository(a.DB)

	a.Users = userRepo
	a.Auth = auth.NewAuthService(userRepo, a.Redis, a.Config.Auth.SessionTTL)
	a.Audit = audit.NewAuditService(auditRepo)
	a.Capabilities = auth.NewCapabilityChecker(userRepo, a.Audit)
	a.Settings = settings.NewSettingsService(settingsRepo)
	a.Rules = rules.NewRegistry(contributors...)
	a.Stash = stash.NewService(a.Redis, stashTTL)
	a.AppKeys = appkeys.NewAppKeyService(appKeyRepo)

	a.Elevation = elevation.NewElevationService(
		elevation.NewRedisStore(a.Redis),
		userRepo,
		auth.Argon2Verifier{},
		auth.TOTPVerifier{},
		a.Settings,
		a.Audit,
		nil, // no two-factor override; host policy hooks register one here
	)

	a.Gate = gate.New(a.Rules, a.Settings, a.Elevation, a.Stash, a.Audit)
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- allow cross-origin requests for the REST API.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses. Every consumer of this service
// is a JSON client, so there are no error pages to render.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"message": message,
	})
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to log in to access this resource."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The resource you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusConflict:
		return "This action conflicts with the current state."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusInternalServerError:
		return "Something went wrong on our end. Please try again."
	case http.StatusBadGateway:
		return "The server received an invalid response."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting sudogate server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
