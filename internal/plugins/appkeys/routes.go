package appkeys

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the application password routes. The user group is
// cookie-authenticated; the admin group additionally requires admin.
func RegisterRoutes(userGroup, adminGroup *echo.Group, h *Handler) {
	userGroup.POST("/me/app-passwords", h.CreateKey)
	userGroup.GET("/me/app-passwords", h.ListKeys)
	userGroup.DELETE("/me/app-passwords/:id", h.RevokeKey)

	adminGroup.PUT("/app-passwords/:id/policy", h.SetPolicy)
}
