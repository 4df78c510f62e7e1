package app

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/middleware"
	"github.com/quillcms/sudogate/internal/plugins/appkeys"
	"github.com/quillcms/sudogate/internal/plugins/audit"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/challenge"
	"github.com/quillcms/sudogate/internal/plugins/gate"
	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
//
// This is the single place where all routes are aggregated. When the host
// platform adds a gated plugin, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for Docker health monitoring.
	e.GET("/healthz", a.healthz)

	// --- Challenge Flow ---
	// The re-authentication prompt backend: verify, 2FA, deactivate, status,
	// blocked notice. Password submissions get a tight rate limit on top of
	// the per-user lockout counter.
	challengeHandler := challenge.NewHandler(a.Elevation, a.Stash, a.Config.Auth.CookieSecure)
	challenge.RegisterRoutes(e, challengeHandler, a.Auth, middleware.RateLimit(10, time.Minute))

	// --- Admin Configuration ---
	// Sudo policy settings, the audit feed, and application password policy
	// overrides. Admin-only, cookie sessions only.
	cfgGroup := e.Group("/admin/sudo",
		auth.RequireAuth(a.Auth),
		auth.RequireAdmin(),
		middleware.CSRF(),
	)
	audit.RegisterRoutes(cfgGroup, audit.NewHandler(a.Audit))
	settings.RegisterRoutes(cfgGroup, settings.NewHandler(a.Settings))

	// --- REST Surface ---
	// Cookie sessions and application passwords both authenticate here; the
	// gate classifies each request by credential before the handler runs.
	api := e.Group("/api/v1",
		auth.OptionalAuth(a.Auth),
		appkeys.OptionalAppPassword(a.AppKeys),
		gate.RESTMiddleware(a.Gate),
	)
	api.GET("/me", a.currentUser)

	// Application password self-service needs a full cookie session: an app
	// password must never mint or revoke another app password.
	selfService := e.Group("/api/v1",
		auth.RequireAuth(a.Auth),
		middleware.CSRF(),
		gate.RESTMiddleware(a.Gate),
	)
	appkeys.RegisterRoutes(selfService, cfgGroup, appkeys.NewHandler(a.AppKeys))

	// --- Host Surfaces ---
	// The CMS mounts its interactive pages behind the browser gate. The gate
	// watches /admin and /admin/ajax requests, stashes blocked form
	// submissions, and redirects to the challenge:
	//
	//	pages := e.Group("/admin", auth.OptionalAuth(a.Auth), gate.Middleware(a.Gate))
	//	usersPlugin.RegisterRoutes(pages)
	//
	// Headless entry points (CLI commands, cron jobs) call
	// a.Gate.InterceptHeadless directly; there is no route to guard.
}

// healthz reports liveness of the process and its backing stores.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "redis": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser reports the authenticated identity and which credential kind
// produced it. Useful for API clients probing whether their application
// password still works.
func (a *App) currentUser(c echo.Context) error {
	if key := appkeys.GetAppPassword(c); key != nil {
		return c.JSON(http.StatusOK, map[string]string{
			"user_id":    key.UserID,
			"credential": "app_password",
		})
	}
	if userID := auth.GetUserID(c); userID != "" {
		return c.JSON(http.StatusOK, map[string]string{
			"user_id":    userID,
			"credential": "cookie",
		})
	}
	return apperror.NewUnauthorized("authentication required")
}
