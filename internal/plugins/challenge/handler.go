// Package challenge serves the re-authentication endpoints: the password
// and two-factor submissions, explicit deactivation, the blocked-notice
// feed, and the status probe for the host shell's UI.
package challenge

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/elevation"
	"github.com/quillcms/sudogate/internal/plugins/stash"
)

// Handler serves the challenge endpoints.
type Handler struct {
	elevation    elevation.ElevationService
	stash        stash.StashService
	cookieSecure bool
}

// NewHandler creates a new challenge handler. cookieSecure should mirror the
// deployment's TLS posture.
func NewHandler(elevationSvc elevation.ElevationService, stashSvc stash.StashService, cookieSecure bool) *Handler {
	return &Handler{
		elevation:    elevationSvc,
		stash:        stashSvc,
		cookieSecure: cookieSecure,
	}
}

// replayInstruction tells the client how to reissue the parked request.
type replayInstruction struct {
	Method string     `json:"method"`
	URL    string     `json:"url"`
	Params url.Values `json:"params"`
}

// verifyResponse is the shared response shape for both verification steps.
type verifyResponse struct {
	Code      string             `json:"code"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	Remaining int                `json:"remaining,omitempty"`
	Replay    *replayInstruction `json:"replay,omitempty"`
}

// Verify runs the password step.
// POST /sudo/verify
func (h *Handler) Verify(c echo.Context) error {
	userID := auth.GetUserID(c)

	var input struct {
		Password string `json:"password" form:"password"`
		StashKey string `json:"stash_key" form:"stash_key"`
	}
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request payload")
	}

	result, err := h.elevation.AttemptActivation(c.Request().Context(), userID, input.Password)
	if err != nil {
		return err
	}

	switch result.Code {
	case elevation.CodeSuccess:
		elevation.SetTokenCookie(c, result.Token, result.ExpiresAt, h.cookieSecure)
		return c.JSON(http.StatusOK, h.successResponse(c, userID, input.StashKey, result))

	case elevation.CodeTwoFactorPending:
		elevation.SetChallengeCookie(c, result.ChallengeToken, result.ExpiresAt, h.cookieSecure)
		expires := result.ExpiresAt
		return c.JSON(http.StatusOK, verifyResponse{Code: result.Code, ExpiresAt: &expires})

	case elevation.CodeLockedOut:
		return c.JSON(http.StatusTooManyRequests, verifyResponse{Code: result.Code, Remaining: result.Remaining})
	}

	// Wrong password and unknown account share this shape; nothing here
	// may reveal whether the user exists.
	return c.JSON(http.StatusUnauthorized, verifyResponse{Code: elevation.CodeInvalidPassword})
}

// VerifyTwoFactor finalizes a pending activation.
// POST /sudo/verify/2fa
func (h *Handler) VerifyTwoFactor(c echo.Context) error {
	userID := auth.GetUserID(c)

	var input struct {
		Code     string `json:"code" form:"code"`
		StashKey string `json:"stash_key" form:"stash_key"`
	}
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request payload")
	}

	result, err := h.elevation.VerifyTwoFactor(c.Request().Context(), userID, input.Code, elevation.GetChallengeCookie(c))
	if err != nil {
		return err
	}

	switch result.Code {
	case elevation.CodeSuccess:
		elevation.ClearChallengeCookie(c)
		elevation.SetTokenCookie(c, result.Token, result.ExpiresAt, h.cookieSecure)
		return c.JSON(http.StatusOK, h.successResponse(c, userID, input.StashKey, result))

	case elevation.CodeLockedOut:
		return c.JSON(http.StatusTooManyRequests, verifyResponse{Code: result.Code, Remaining: result.Remaining})
	}

	return c.JSON(http.StatusUnauthorized, verifyResponse{Code: elevation.CodeInvalidTwoFactor})
}

// Deactivate drops the elevated session explicitly.
// POST /sudo/deactivate
func (h *Handler) Deactivate(c echo.Context) error {
	if err := h.elevation.Deactivate(c.Request().Context(), auth.GetUserID(c)); err != nil {
		return err
	}
	elevation.ClearTokenCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Notice consumes the blocked-notice transient.
// GET /sudo/notice
func (h *Handler) Notice(c echo.Context) error {
	notice, err := h.elevation.TakeBlockedNotice(c.Request().Context(), auth.GetUserID(c), elevation.GetTokenCookie(c))
	if err != nil {
		return err
	}
	if notice == nil {
		return c.JSON(http.StatusOK, map[string]any{"notice": nil})
	}
	return c.JSON(http.StatusOK, map[string]any{"notice": notice})
}

// Status reports the elevation state for the host shell's UI.
// GET /sudo/status
func (h *Handler) Status(c echo.Context) error {
	active, expiresAt := h.elevation.Status(c.Request().Context(), auth.GetUserID(c), elevation.GetTokenCookie(c))
	resp := map[string]any{"active": active}
	if active {
		resp["expires_at"] = expiresAt.UTC()
	}
	return c.JSON(http.StatusOK, resp)
}

// successResponse assembles the success payload, taking the stash entry for
// replay when a key was supplied. A missing, expired, or foreign key is
// silently ignored; the elevation succeeded either way.
func (h *Handler) successResponse(c echo.Context, userID, stashKey string, result *elevation.Result) verifyResponse {
	expires := result.ExpiresAt
	resp := verifyResponse{Code: result.Code, ExpiresAt: &expires}

	if stashKey == "" {
		return resp
	}
	entry, err := h.stash.Take(c.Request().Context(), stashKey, userID)
	if err != nil || entry == nil {
		return resp
	}
	resp.Replay = &replayInstruction{
		Method: entry.Method,
		URL:    entry.URL,
		Params: entry.Params,
	}
	return resp
}
