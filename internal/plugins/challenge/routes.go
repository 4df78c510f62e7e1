package challenge

import (
	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/middleware"
	"github.com/quillcms/sudogate/internal/plugins/auth"
)

// RegisterRoutes sets up the challenge endpoints. All routes require an
// authenticated host session; the verification submissions additionally get
// CSRF protection and a tight rate limit since they accept passwords.
func RegisterRoutes(e *echo.Echo, h *Handler, authSvc auth.AuthService, limiter echo.MiddlewareFunc) {
	g := e.Group("/sudo", auth.RequireAuth(authSvc))

	g.POST("/verify", h.Verify, middleware.CSRF(), limiter)
	g.POST("/verify/2fa", h.VerifyTwoFactor, middleware.CSRF(), limiter)
	g.POST("/deactivate", h.Deactivate, middleware.CSRF())
	g.GET("/notice", h.Notice)
	g.GET("/status", h.Status)
}
