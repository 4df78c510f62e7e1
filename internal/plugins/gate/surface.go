package gate

import "strings"

// Surface names. Exactly one per request.
const (
	SurfaceAdmin       = "admin"
	SurfaceAJAX        = "ajax"
	SurfaceREST        = "rest"
	SurfaceAppPassword = "rest_app_password"
	SurfaceCLI         = "cli"
	SurfaceCron        = "cron"
	SurfaceXMLRPC      = "xmlrpc"
	SurfaceGraphQL     = "graphql"
)

// DetectSurface classifies the request into exactly one surface. Headless
// contexts win outright; HTTP requests classify by path, with the
// credential kind splitting the REST surface.
func DetectSurface(rc *RequestContext) string {
	switch rc.Headless {
	case SurfaceCLI:
		return SurfaceCLI
	case SurfaceCron:
		return SurfaceCron
	}

	switch {
	case strings.HasPrefix(rc.Path, "/xmlrpc"):
		return SurfaceXMLRPC
	case strings.HasPrefix(rc.Path, "/graphql"):
		return SurfaceGraphQL
	case strings.HasPrefix(rc.Path, "/api/"):
		if rc.Credential == CredentialAppPassword {
			return SurfaceAppPassword
		}
		return SurfaceREST
	case strings.HasPrefix(rc.Path, "/admin/ajax"):
		return SurfaceAJAX
	default:
		return SurfaceAdmin
	}
}
