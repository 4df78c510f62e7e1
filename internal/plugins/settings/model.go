// Package settings manages Sudogate's site-wide configuration: how long an
// elevated session lasts and which policy applies to each headless request
// surface. Settings live in the site_settings key-value table and are cached
// per process; writers must call Invalidate after a change.
package settings

import "time"

// Policy is the gating tier applied to a surface or credential.
type Policy string

const (
	// PolicyDisabled rejects every gated action on the surface outright.
	// There is no way to elevate; callers get sudo_disabled.
	PolicyDisabled Policy = "disabled"

	// PolicyLimited requires an active elevated session for gated actions.
	PolicyLimited Policy = "limited"

	// PolicyUnrestricted waves gated actions through without elevation.
	PolicyUnrestricted Policy = "unrestricted"

	// PolicyInherit is only valid as a per-credential override. It means
	// "use the surface's global setting".
	PolicyInherit Policy = ""
)

// Valid reports whether p is one of the three concrete tiers.
func (p Policy) Valid() bool {
	switch p {
	case PolicyDisabled, PolicyLimited, PolicyUnrestricted:
		return true
	}
	return false
}

// --- Database Models ---

// SiteSetting represents a single row in the site_settings key-value table.
// Values are stored as strings and parsed into SudoSettings by the service.
type SiteSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// --- Service DTOs ---

// SudoSettings holds the parsed sudo configuration. The interactive surfaces
// (admin, ajax, cookie REST) are always limited and have no knob here; only
// the headless surfaces carry a configurable policy.
type SudoSettings struct {
	// DurationMinutes is how long an elevated session stays active.
	DurationMinutes int `json:"duration_minutes"`

	// Per-surface policies for the headless channels.
	RESTAppPassword Policy `json:"rest_app_password"`
	CLI             Policy `json:"cli"`
	Cron            Policy `json:"cron"`
	XMLRPC          Policy `json:"xmlrpc"`
	GraphQL         Policy `json:"graphql"`
}

// SurfacePolicy returns the configured policy for a headless surface name.
// Unknown surfaces get PolicyLimited, the safe default.
func (s *SudoSettings) SurfacePolicy(surface string) Policy {
	switch surface {
	case "rest_app_password":
		return s.RESTAppPassword
	case "cli":
		return s.CLI
	case "cron":
		return s.Cron
	case "xmlrpc":
		return s.XMLRPC
	case "graphql":
		return s.GraphQL
	}
	return PolicyLimited
}

// --- Setting Key Constants ---

// Setting keys used in the site_settings table.
const (
	KeyDurationMinutes = "sudo.duration_minutes"
	KeyPolicyAppPass   = "sudo.policy.rest_app_password"
	KeyPolicyCLI       = "sudo.policy.cli"
	KeyPolicyCron      = "sudo.policy.cron"
	KeyPolicyXMLRPC    = "sudo.policy.xmlrpc"
	KeyPolicyGraphQL   = "sudo.policy.graphql"
)

// DefaultDurationMinutes is the elevated-session lifetime used when the
// setting is missing or unparseable.
const DefaultDurationMinutes = 10
