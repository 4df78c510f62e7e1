package rules

import (
	"regexp"
	"sync"
)

// Contributor receives the ordered rule slice built so far and returns a
// possibly modified slice. Contributors may append, remove, reorder, or
// fully replace rules. They run exactly once per cache build, in
// registration order, never per request.
type Contributor func(rules []Rule) []Rule

// Registry builds and memoizes the ordered gated-action catalog: built-in
// rules first in declaration order, then contributed rules in contribution
// order. Order matters downstream -- the gate is first-match-wins.
type Registry struct {
	mu           sync.Mutex
	contributors []Contributor
	cached       []Rule
}

// NewRegistry creates a registry with the given contributors applied on top
// of the built-in catalog.
func NewRegistry(contributors ...Contributor) *Registry {
	return &Registry{contributors: contributors}
}

// Rules returns the memoized ordered catalog, building it on first call.
// Entries missing an ID are dropped during the build; a contributor that
// returns malformed rules degrades the catalog but never panics.
func (r *Registry) Rules() []Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached
	}

	built := builtinRules()
	for _, contribute := range r.contributors {
		built = contribute(built)
	}

	valid := make([]Rule, 0, len(built))
	for _, rule := range built {
		if rule.ID == "" {
			continue
		}
		valid = append(valid, rule)
	}

	r.cached = valid
	return r.cached
}

// ResetCache clears the memoized catalog. The next Rules() call rebuilds it
// and re-applies the contributors.
func (r *Registry) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// builtinRules returns the CMS-native catalog in declaration order. The
// slice is rebuilt per call so contributors can mutate their copy freely.
func builtinRules() []Rule {
	return []Rule{
		{
			ID:       "users.delete",
			Label:    "Delete user",
			Category: "users",
			Admin:    &AdminMatcher{Page: "users", Actions: []string{"delete", "dodelete"}},
			AJAX:     &AJAXMatcher{Actions: []string{"delete-user"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/users/[^/]+$`), Methods: []string{"DELETE"}},
			GraphQL:  &GraphQLMatcher{Mutation: true},
		},
		{
			ID:       "users.role_change",
			Label:    "Change user role",
			Category: "users",
			Admin:    &AdminMatcher{Page: "users", Actions: []string{"promote", "demote", "setrole"}, Method: "POST"},
			AJAX:     &AJAXMatcher{Actions: []string{"change-role"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/users/[^/]+/role$`), Methods: []string{"PUT", "PATCH"}},
		},
		{
			ID:       "users.password_change",
			Label:    "Change account password",
			Category: "users",
			Admin:    &AdminMatcher{Page: "profile", Actions: []string{"update-password"}, Method: "POST"},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/users/[^/]+/password$`), Methods: []string{"PUT"}},
		},
		{
			ID:       "addons.install",
			Label:    "Install addon",
			Category: "addons",
			Admin:    &AdminMatcher{Page: "addons", Actions: []string{"install", "upload"}},
			AJAX:     &AJAXMatcher{Actions: []string{"install-addon"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/addons$`), Methods: []string{"POST"}},
		},
		{
			ID:       "addons.activate",
			Label:    "Activate or deactivate addon",
			Category: "addons",
			Admin:    &AdminMatcher{Page: "addons", Actions: []string{"activate", "deactivate"}},
			AJAX:     &AJAXMatcher{Actions: []string{"toggle-addon"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/addons/[^/]+/active$`), Methods: []string{"PUT"}},
		},
		{
			ID:       "addons.delete",
			Label:    "Delete addon",
			Category: "addons",
			Admin:    &AdminMatcher{Page: "addons", Actions: []string{"delete"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/addons/[^/]+$`), Methods: []string{"DELETE"}},
		},
		{
			ID:       "settings.update",
			Label:    "Update site settings",
			Category: "settings",
			Admin:    &AdminMatcher{Page: "settings", Method: "POST"},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/settings$`), Methods: []string{"PUT", "PATCH"}},
			GraphQL:  &GraphQLMatcher{Mutation: true},
		},
		{
			ID:       "appkeys.create",
			Label:    "Create application password",
			Category: "credentials",
			Admin:    &AdminMatcher{Page: "profile", Actions: []string{"create-app-password"}, Method: "POST"},
			AJAX:     &AJAXMatcher{Actions: []string{"create-app-password"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/users/[^/]+/app-passwords$`), Methods: []string{"POST"}},
		},
		{
			ID:       "appkeys.revoke",
			Label:    "Revoke application password",
			Category: "credentials",
			Admin:    &AdminMatcher{Page: "profile", Actions: []string{"revoke-app-password"}, Method: "POST"},
			AJAX:     &AJAXMatcher{Actions: []string{"revoke-app-password"}},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/users/[^/]+/app-passwords/[^/]+$`), Methods: []string{"DELETE"}},
		},
		{
			ID:       "media.purge",
			Label:    "Purge media library",
			Category: "media",
			Admin:    &AdminMatcher{Page: "media", Actions: []string{"purge", "empty-trash"}},
			AJAX:     &AJAXMatcher{Actions: []string{"purge-media"}},
		},
		{
			ID:       "site.export",
			Label:    "Export site data",
			Category: "site",
			Admin:    &AdminMatcher{Page: "export"},
			REST:     &RESTMatcher{Route: regexp.MustCompile(`^/api/v1/export$`), Methods: []string{"POST"}},
		},
	}
}
