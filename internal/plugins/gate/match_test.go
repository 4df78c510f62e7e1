package gate

import (
	"net/url"
	"regexp"
	"testing"

	"github.com/quillcms/sudogate/internal/plugins/rules"
)

func adminCtx(page, action, method string) *RequestContext {
	return &RequestContext{
		Method:    method,
		Path:      "/admin/" + page,
		AdminPage: page,
		Action:    action,
		Params:    url.Values{"action": {action}},
		UserID:    "user-1",
	}
}

func TestDetectSurface(t *testing.T) {
	tests := []struct {
		name string
		rc   *RequestContext
		want string
	}{
		{"admin page", &RequestContext{Path: "/admin/users"}, SurfaceAdmin},
		{"ajax dispatch", &RequestContext{Path: "/admin/ajax"}, SurfaceAJAX},
		{"cookie rest", &RequestContext{Path: "/api/v1/users/42"}, SurfaceREST},
		{"app password rest", &RequestContext{Path: "/api/v1/users/42", Credential: CredentialAppPassword}, SurfaceAppPassword},
		{"graphql", &RequestContext{Path: "/graphql"}, SurfaceGraphQL},
		{"xmlrpc", &RequestContext{Path: "/xmlrpc"}, SurfaceXMLRPC},
		{"cli wins over path", &RequestContext{Path: "/api/v1/users", Headless: "cli"}, SurfaceCLI},
		{"cron wins over path", &RequestContext{Path: "/admin/users", Headless: "cron"}, SurfaceCron},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectSurface(tt.rc); got != tt.want {
				t.Errorf("DetectSurface() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMatchRequest_FirstMatchWins(t *testing.T) {
	// Two rules with overlapping action sets: the earlier one must win.
	catalog := []rules.Rule{
		{ID: "first", AJAX: &rules.AJAXMatcher{Actions: []string{"shared-action"}}},
		{ID: "second", AJAX: &rules.AJAXMatcher{Actions: []string{"shared-action", "other"}}},
	}

	rc := &RequestContext{Path: "/admin/ajax", Action: "shared-action"}
	got := MatchRequest(catalog, SurfaceAJAX, rc)
	if got == nil || got.ID != "first" {
		t.Fatalf("expected the earlier rule to win, got %v", got)
	}

	// The second rule is still reachable through its unshared action.
	rc.Action = "other"
	got = MatchRequest(catalog, SurfaceAJAX, rc)
	if got == nil || got.ID != "second" {
		t.Fatalf("expected second rule for unshared action, got %v", got)
	}
}

func TestMatchRequest_NoMatch(t *testing.T) {
	catalog := []rules.Rule{
		{ID: "users.delete", AJAX: &rules.AJAXMatcher{Actions: []string{"delete-user"}}},
	}

	rc := &RequestContext{Path: "/admin/ajax", Action: "harmless-action"}
	if got := MatchRequest(catalog, SurfaceAJAX, rc); got != nil {
		t.Errorf("expected no match, got %s", got.ID)
	}
}

func TestMatchRequest_SkipsRulesWithoutID(t *testing.T) {
	catalog := []rules.Rule{
		{AJAX: &rules.AJAXMatcher{Actions: []string{"delete-user"}}},
		{ID: "users.delete", AJAX: &rules.AJAXMatcher{Actions: []string{"delete-user"}}},
	}

	rc := &RequestContext{Action: "delete-user"}
	got := MatchRequest(catalog, SurfaceAJAX, rc)
	if got == nil || got.ID != "users.delete" {
		t.Fatalf("rule without ID should be skipped, got %v", got)
	}
}

func TestMatchAdmin(t *testing.T) {
	rule := rules.Rule{
		ID: "users.role_change",
		Admin: &rules.AdminMatcher{
			Page:    "users",
			Actions: []string{"promote", "demote"},
			Method:  "POST",
		},
	}
	catalog := []rules.Rule{rule}

	tests := []struct {
		name  string
		rc    *RequestContext
		match bool
	}{
		{"full match", adminCtx("users", "promote", "POST"), true},
		{"other listed action", adminCtx("users", "demote", "POST"), true},
		{"wrong page", adminCtx("media", "promote", "POST"), false},
		{"action not in set", adminCtx("users", "list", "POST"), false},
		{"wrong method", adminCtx("users", "promote", "GET"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchRequest(catalog, SurfaceAdmin, tt.rc)
			if (got != nil) != tt.match {
				t.Errorf("match = %v, want %v", got != nil, tt.match)
			}
		})
	}
}

func TestMatchAdmin_NoActionSetMatchesAnyAction(t *testing.T) {
	catalog := []rules.Rule{
		{ID: "settings.update", Admin: &rules.AdminMatcher{Page: "settings"}},
	}

	for _, action := range []string{"", "save", "anything"} {
		rc := adminCtx("settings", action, "POST")
		if MatchRequest(catalog, SurfaceAdmin, rc) == nil {
			t.Errorf("page-only matcher should accept action %q", action)
		}
	}
}

func TestMatchREST(t *testing.T) {
	catalog := []rules.Rule{
		{
			ID: "users.delete",
			REST: &rules.RESTMatcher{
				Route:   regexp.MustCompile(`^/api/v1/users/[^/]+$`),
				Methods: []string{"DELETE"},
			},
		},
	}

	tests := []struct {
		name   string
		method string
		path   string
		match  bool
	}{
		{"route and method", "DELETE", "/api/v1/users/42", true},
		{"wrong method", "GET", "/api/v1/users/42", false},
		{"wrong route", "DELETE", "/api/v1/posts/42", false},
		{"route with extra segment", "DELETE", "/api/v1/users/42/role", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &RequestContext{Method: tt.method, Path: tt.path}
			got := MatchRequest(catalog, SurfaceREST, rc)
			if (got != nil) != tt.match {
				t.Errorf("match = %v, want %v", got != nil, tt.match)
			}
		})
	}
}

func TestMatchGraphQL_SubstringHeuristic(t *testing.T) {
	catalog := []rules.Rule{
		{ID: "settings.update", GraphQL: &rules.GraphQLMatcher{Mutation: true}},
	}

	tests := []struct {
		name  string
		body  string
		match bool
	}{
		{"plain mutation", `mutation { updateSettings(title: "x") { ok } }`, true},
		{"query", `query { settings { title } }`, false},
		// The heuristic is a substring check; a comment containing the
		// word triggers it. That behavior is intentional.
		{"word in comment", `query { settings { title } } # not a mutation`, true},
		{"empty body", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &RequestContext{Path: "/graphql", RawBody: tt.body}
			got := MatchRequest(catalog, SurfaceGraphQL, rc)
			if (got != nil) != tt.match {
				t.Errorf("match = %v, want %v", got != nil, tt.match)
			}
		})
	}
}

func TestMatchXMLRPC_UsesActionName(t *testing.T) {
	catalog := []rules.Rule{
		{ID: "users.delete", AJAX: &rules.AJAXMatcher{Actions: []string{"delete-user"}}},
	}

	rc := &RequestContext{Path: "/xmlrpc", Action: "delete-user"}
	if MatchRequest(catalog, SurfaceXMLRPC, rc) == nil {
		t.Error("xmlrpc should match through the action name")
	}
}
