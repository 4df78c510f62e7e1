package gate

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/plugins/elevation"
)

// blockResponse is the structured error shape shared by all API surfaces.
type blockResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Middleware is the browser-chain adapter for the admin and ajax surfaces.
// It builds the request context, asks the gate, and performs the halt or
// redirect the decision calls for.
func Middleware(g *Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := FromEcho(c)
			decision, err := g.Intercept(c.Request().Context(), rc, elevation.GetTokenCookie(c))
			if err != nil {
				return err
			}

			switch decision.Action {
			case ActionRedirect:
				return c.Redirect(http.StatusSeeOther, decision.RedirectURL)
			case ActionBlock:
				return writeBlock(c, decision)
			}
			return next(c)
		}
	}
}

// RESTMiddleware is the adapter for the REST, app-password, GraphQL, and
// XML-RPC chains. A pass decision is "no opinion": the normal pipeline
// continues.
func RESTMiddleware(g *Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := FromEcho(c)
			decision, err := g.InterceptREST(c.Request().Context(), rc, elevation.GetTokenCookie(c))
			if err != nil {
				return err
			}

			if decision.Action == ActionBlock {
				return writeBlock(c, decision)
			}
			return next(c)
		}
	}
}

// writeBlock renders the structured block response.
func writeBlock(c echo.Context, d *Decision) error {
	data := map[string]any{"status": d.Status}
	message := "this action requires re-authentication"

	switch d.Code {
	case CodeSudoDisabled:
		message = "this action is disabled on this surface"
	case CodeSudoBlocked:
		message = "this action requires an elevated session, which this surface cannot establish"
	}

	if d.Rule != nil {
		data["rule_id"] = d.Rule.ID
		data["label"] = d.Rule.Label
		if d.Code == CodeSudoRequired {
			message = fmt.Sprintf("%q requires re-authentication", d.Rule.Label)
		}
	}

	return c.JSON(d.Status, blockResponse{
		Code:    d.Code,
		Message: message,
		Data:    data,
	})
}
