package appkeys

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/auth"
)

// Handler serves the application password endpoints.
type Handler struct {
	service AppKeyService
}

// NewHandler creates a new application password handler.
func NewHandler(service AppKeyService) *Handler {
	return &Handler{service: service}
}

// CreateKey issues a new credential for the authenticated user.
// POST /api/v1/me/app-passwords
func (h *Handler) CreateKey(c echo.Context) error {
	userID := auth.GetUserID(c)

	var input struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request payload")
	}

	result, err := h.service.CreateKey(c.Request().Context(), userID, input.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// ListKeys returns the authenticated user's credentials.
// GET /api/v1/me/app-passwords
func (h *Handler) ListKeys(c echo.Context) error {
	keys, err := h.service.ListKeys(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"app_passwords": keys})
}

// RevokeKey deletes one of the authenticated user's credentials.
// DELETE /api/v1/me/app-passwords/:id
func (h *Handler) RevokeKey(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid credential ID")
	}

	// Ownership check: users revoke their own credentials only.
	keys, err := h.service.ListKeys(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	owned := false
	for _, key := range keys {
		if key.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return apperror.NewNotFound("application password not found")
	}

	if err := h.service.RevokeKey(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetPolicy sets a credential's sudo policy override. Admin only.
// PUT /admin/sudo/app-passwords/:id/policy
func (h *Handler) SetPolicy(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid credential ID")
	}

	var input struct {
		Policy string `json:"policy"`
	}
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request payload")
	}

	if err := h.service.SetPolicy(c.Request().Context(), id, input.Policy); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
