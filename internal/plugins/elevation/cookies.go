package elevation

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Cookie names. The elevation token and the pending-2FA challenge are
// separate cookies with the same binding property: raw random value on the
// client, only the hash on the server.
const (
	TokenCookieName     = "quill_sudo"
	ChallengeCookieName = "quill_sudo_challenge"
)

// SetTokenCookie writes the raw elevation token, scoped to the verifying
// request's host, expiring with the elevation itself.
func SetTokenCookie(c echo.Context, token string, expiresAt time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetTokenCookie reads the presented elevation token, empty if absent.
func GetTokenCookie(c echo.Context) string {
	cookie, err := c.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClearTokenCookie expires the elevation cookie on the client.
func ClearTokenCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// SetChallengeCookie writes the pending-2FA challenge token.
func SetChallengeCookie(c echo.Context, token string, expiresAt time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     ChallengeCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetChallengeCookie reads the presented challenge token, empty if absent.
func GetChallengeCookie(c echo.Context) string {
	cookie, err := c.Cookie(ChallengeCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClearChallengeCookie expires the challenge cookie on the client.
func ClearChallengeCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     ChallengeCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
