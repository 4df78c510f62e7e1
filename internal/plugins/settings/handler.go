package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/apperror"
)

// Handler serves the admin settings endpoints.
type Handler struct {
	service SettingsService
}

// NewHandler creates a new settings handler.
func NewHandler(service SettingsService) *Handler {
	return &Handler{service: service}
}

// GetSettings returns the current sudo configuration.
// GET /admin/sudo/settings
func (h *Handler) GetSettings(c echo.Context) error {
	cfg, err := h.service.GetSudoSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateSettings validates and persists new sudo configuration.
// PUT /admin/sudo/settings
func (h *Handler) UpdateSettings(c echo.Context) error {
	var cfg SudoSettings
	if err := c.Bind(&cfg); err != nil {
		return apperror.NewBadRequest("invalid settings payload")
	}

	if err := h.service.UpdateSudoSettings(c.Request().Context(), &cfg); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &cfg)
}
