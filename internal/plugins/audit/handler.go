package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for the audit event feed. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// ListEvents returns the paginated audit feed as JSON
// (GET /admin/sudo/events?type=sudo.lockout&page=2). Restricted to site
// admins via route middleware.
func (h *Handler) ListEvents(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	eventType := c.QueryParam("type")

	events, total, err := h.service.ListEvents(c.Request().Context(), eventType, page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events":   events,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}
