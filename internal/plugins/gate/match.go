package gate

import (
	"strings"

	"github.com/quillcms/sudogate/internal/plugins/rules"
)

// MatchRequest returns the first rule in catalog order whose matcher for the
// given surface accepts the request, or nil when none does. First-match-wins
// is load-bearing: overlapping action sets resolve to the earlier rule.
//
// CLI and cron have no request shape to match against; their harness names
// the rule explicitly (see InterceptHeadless).
func MatchRequest(catalog []rules.Rule, surface string, rc *RequestContext) *rules.Rule {
	for i := range catalog {
		rule := &catalog[i]
		if rule.ID == "" {
			continue
		}
		if ruleMatches(rule, surface, rc) {
			return rule
		}
	}
	return nil
}

// ruleMatches checks one rule's matcher for one surface.
func ruleMatches(rule *rules.Rule, surface string, rc *RequestContext) bool {
	switch surface {
	case SurfaceAdmin:
		return matchAdmin(rule.Admin, rc)
	case SurfaceAJAX:
		return matchActions(ruleAJAXActions(rule), rc.Action)
	case SurfaceREST, SurfaceAppPassword:
		return matchREST(rule.REST, rc)
	case SurfaceXMLRPC:
		// The XML-RPC adapter maps the RPC method name onto Action.
		return matchActions(ruleAJAXActions(rule), rc.Action)
	case SurfaceGraphQL:
		return rule.GraphQL != nil && rule.GraphQL.Mutation && looksLikeMutation(rc.RawBody)
	}
	return false
}

func ruleAJAXActions(rule *rules.Rule) []string {
	if rule.AJAX == nil {
		return nil
	}
	return rule.AJAX.Actions
}

// matchAdmin: page must equal; a declared action set and a declared method
// each narrow the match further.
func matchAdmin(m *rules.AdminMatcher, rc *RequestContext) bool {
	if m == nil || m.Page == "" {
		return false
	}
	if rc.AdminPage != m.Page {
		return false
	}
	if len(m.Actions) > 0 && !contains(m.Actions, rc.Action) {
		return false
	}
	if m.Method != "" && !strings.EqualFold(m.Method, rc.Method) {
		return false
	}
	return true
}

// matchActions: the request's action must be in the declared set.
func matchActions(actions []string, action string) bool {
	if len(actions) == 0 || action == "" {
		return false
	}
	return contains(actions, action)
}

// matchREST: the route pattern must match the path and the method must be
// in the declared set.
func matchREST(m *rules.RESTMatcher, rc *RequestContext) bool {
	if m == nil || m.Route == nil {
		return false
	}
	if !m.Route.MatchString(rc.Path) {
		return false
	}
	return contains(m.Methods, rc.Method)
}

// looksLikeMutation is a substring heuristic over the raw query text. It
// false-positives on the word "mutation" in comments or strings and misses
// obfuscated operations; kept deliberately in place of a real parser.
func looksLikeMutation(rawBody string) bool {
	return strings.Contains(rawBody, "mutation")
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
