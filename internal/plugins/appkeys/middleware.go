package appkeys

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys for the authenticated credential. The gate reads these to
// classify the request as the rest_app_password surface and to resolve the
// per-credential policy override.
const (
	appPasswordContextKey = "app_password"
	appPasswordUserKey    = "app_password_user_id"
)

// GetAppPassword retrieves the authenticated credential from the request
// context, nil when the request authenticated by cookie instead.
func GetAppPassword(c echo.Context) *AppPassword {
	key, _ := c.Get(appPasswordContextKey).(*AppPassword)
	return key
}

// RequireAppPassword returns middleware that authenticates requests via an
// application password in the Authorization header and marks the request's
// credential kind for surface detection.
func RequireAppPassword(service AppKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "application password required")
			}

			rawKey := strings.TrimPrefix(authHeader, "Bearer ")
			if rawKey == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format, use: Bearer <key>")
			}

			key, err := service.AuthenticateKey(c.Request().Context(), rawKey)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid application password")
			}

			c.Set(appPasswordContextKey, key)
			c.Set(appPasswordUserKey, key.UserID)

			return next(c)
		}
	}
}

// OptionalAppPassword authenticates the credential when present but lets
// cookie-authenticated requests through untouched. The interactive REST
// surface and the app-password surface share routes; this middleware is what
// tells them apart.
func OptionalAppPassword(service AppKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			rawKey := strings.TrimPrefix(authHeader, "Bearer ")
			if rawKey == authHeader {
				return next(c)
			}

			key, err := service.AuthenticateKey(c.Request().Context(), rawKey)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid application password")
			}

			c.Set(appPasswordContextKey, key)
			c.Set(appPasswordUserKey, key.UserID)
			return next(c)
		}
	}
}
