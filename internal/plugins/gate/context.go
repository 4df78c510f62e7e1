// Package gate is the orchestrator: it classifies each inbound request by
// surface, matches it against the gated-action catalog, consults the
// elevation state and the surface policy, and returns a pass, block, or
// redirect decision. The Echo adapters translate decisions into responses;
// the gate itself never writes one.
package gate

import (
	"io"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/quillcms/sudogate/internal/plugins/appkeys"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// CredentialKind tells the classifier how the request authenticated.
type CredentialKind string

const (
	// CredentialCookie is the interactive browser session.
	CredentialCookie CredentialKind = "cookie"

	// CredentialAppPassword is an application password presented as a
	// bearer credential.
	CredentialAppPassword CredentialKind = "app_password"
)

// maxBodyPeek bounds how much of a request body the classifier reads for
// the GraphQL mutation check.
const maxBodyPeek = 64 * 1024

// RequestContext is the immutable snapshot of one request the classifier
// works from. It is built once by the adapter (or by hand for headless
// invocations) and never reads ambient state afterwards.
type RequestContext struct {
	// Method is the HTTP method, upper case.
	Method string

	// Path is the URL path, without query string.
	Path string

	// Params merges query and form parameters.
	Params url.Values

	// AdminPage is the admin page name for /admin/ requests, empty
	// elsewhere.
	AdminPage string

	// Action is the request's "action" parameter. The XML-RPC adapter puts
	// the RPC method name here.
	Action string

	// RawBody is the request body for the GraphQL mutation check,
	// truncated at maxBodyPeek.
	RawBody string

	// UserID is the authenticated user, empty when anonymous.
	UserID string

	// Credential is how the request authenticated.
	Credential CredentialKind

	// CredentialPolicy is the per-credential sudo override carried by an
	// application password. Empty means inherit.
	CredentialPolicy settings.Policy

	// Headless names a non-HTTP invocation context: "cli" or "cron".
	// Empty for HTTP requests.
	Headless string
}

// FromEcho builds the request context from an Echo request. Call it after
// the auth and app-password middleware so the identity fields are resolved.
func FromEcho(c echo.Context) *RequestContext {
	req := c.Request()

	params := url.Values{}
	for k, vs := range c.QueryParams() {
		params[k] = vs
	}
	if form, err := c.FormParams(); err == nil {
		for k, vs := range form {
			params[k] = vs
		}
	}

	rc := &RequestContext{
		Method:     req.Method,
		Path:       req.URL.Path,
		Params:     params,
		AdminPage:  adminPageFromPath(req.URL.Path),
		Action:     params.Get("action"),
		UserID:     auth.GetUserID(c),
		Credential: CredentialCookie,
	}

	if key := appkeys.GetAppPassword(c); key != nil {
		rc.Credential = CredentialAppPassword
		rc.CredentialPolicy = settings.Policy(key.Policy)
		rc.UserID = key.UserID
	}

	// Only GraphQL requests need the body; don't drain everyone's.
	if strings.HasPrefix(req.URL.Path, "/graphql") && req.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(req.Body, maxBodyPeek))
		rc.RawBody = string(body)
		req.Body = io.NopCloser(strings.NewReader(string(body)))
	}

	return rc
}

// adminPageFromPath extracts the admin page name: /admin/users?... -> users.
func adminPageFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/admin/")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
