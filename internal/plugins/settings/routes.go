package settings

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the sudo settings routes on the given admin group.
// The caller applies authentication and admin middleware on the group.
func RegisterRoutes(adminGroup *echo.Group, h *Handler) {
	adminGroup.GET("/settings", h.GetSettings)
	adminGroup.PUT("/settings", h.UpdateSettings)
}
