package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the audit feed routes on the given admin group.
// The feed exposes lockouts and tamper events, so the caller applies
// authentication and admin middleware on the group.
func RegisterRoutes(adminGroup *echo.Group, h *Handler) {
	adminGroup.GET("/events", h.ListEvents)
}
