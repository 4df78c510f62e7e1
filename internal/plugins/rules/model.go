// Package rules holds the declarative catalog of gated actions: the
// privileged mutating operations that require an elevated (sudo) session
// before they run. The gate consults this catalog on every request.
package rules

import "regexp"

// AdminMatcher matches traditional admin-page form posts. Page is required;
// Actions and Method narrow the match when set.
type AdminMatcher struct {
	// Page is the admin page name (e.g. "users", "addons").
	Page string

	// Actions limits the match to specific values of the request's "action"
	// parameter. Empty means any action on the page matches.
	Actions []string

	// Method limits the match to one HTTP method. Empty means any method.
	Method string
}

// AJAXMatcher matches JSON action endpoints by their "action" parameter.
type AJAXMatcher struct {
	Actions []string
}

// RESTMatcher matches REST API requests by route pattern and method.
type RESTMatcher struct {
	// Route is a compiled pattern matched against the request path.
	Route *regexp.Regexp

	// Methods is the set of HTTP methods the rule covers.
	Methods []string
}

// GraphQLMatcher marks a rule as covering GraphQL mutations. There is no
// per-mutation matching: any request the gate classifies as a mutation
// matches the first rule with Mutation set.
type GraphQLMatcher struct {
	Mutation bool
}

// Rule is one immutable catalog entry. A rule may carry matchers for more
// than one surface; the gate only consults the matcher for the surface it
// classified the request into.
type Rule struct {
	// ID is a stable dotted identifier, globally unique across built-in and
	// contributed rules (e.g. "users.delete").
	ID string

	// Label is the human-readable name shown in challenge pages and audit
	// entries.
	Label string

	// Category groups related rules in the admin UI.
	Category string

	Admin   *AdminMatcher
	AJAX    *AJAXMatcher
	REST    *RESTMatcher
	GraphQL *GraphQLMatcher
}
