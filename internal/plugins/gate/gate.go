package gate

import (
	"context"
	"net/http"
	"net/url"

	"github.com/quillcms/sudogate/internal/plugins/audit"
	"github.com/quillcms/sudogate/internal/plugins/elevation"
	"github.com/quillcms/sudogate/internal/plugins/rules"
	"github.com/quillcms/sudogate/internal/plugins/settings"
	"github.com/quillcms/sudogate/internal/plugins/stash"
)

// Block codes surfaced to API callers.
const (
	CodeSudoRequired = "sudo_required"
	CodeSudoBlocked  = "sudo_blocked"
	CodeSudoDisabled = "sudo_disabled"
)

// ChallengePath is the browser challenge page the admin surface redirects
// to, with the stash key in the query string.
const ChallengePath = "/sudo/challenge"

// DecisionAction says what the adapter should do with the request.
type DecisionAction int

const (
	// ActionPass lets the request continue unchanged.
	ActionPass DecisionAction = iota

	// ActionBlock halts the request with a structured error.
	ActionBlock

	// ActionRedirect sends the browser to the challenge page.
	ActionRedirect
)

// Decision is the gate's verdict on one request. The gate never writes a
// response itself; the adapter translates the decision.
type Decision struct {
	Action DecisionAction

	// Code, Status, Rule describe a block.
	Code   string
	Status int
	Rule   *rules.Rule

	// RedirectURL and StashKey describe a redirect.
	RedirectURL string
	StashKey    string
}

var pass = &Decision{Action: ActionPass}

// Gate wires the classifier to the registry, policy, elevation state, stash,
// and audit log.
type Gate struct {
	registry  *rules.Registry
	settings  settings.SettingsService
	elevation elevation.ElevationService
	stash     stash.StashService
	audit     audit.AuditService
}

// New creates the gate.
func New(
	registry *rules.Registry,
	settingsSvc settings.SettingsService,
	elevationSvc elevation.ElevationService,
	stashSvc stash.StashService,
	auditSvc audit.AuditService,
) *Gate {
	return &Gate{
		registry:  registry,
		settings:  settingsSvc,
		elevation: elevationSvc,
		stash:     stashSvc,
		audit:     auditSvc,
	}
}

// Intercept is the browser entry point for the admin and ajax surfaces.
// presentedToken is the raw elevation cookie value, empty if absent.
func (g *Gate) Intercept(ctx context.Context, rc *RequestContext, presentedToken string) (*Decision, error) {
	surface := DetectSurface(rc)

	rule := MatchRequest(g.registry.Rules(), surface, rc)
	if rule == nil {
		return pass, nil
	}

	// Gating is moot without an identity to elevate; authorization for the
	// underlying action is the host's concern.
	if rc.UserID == "" {
		return pass, nil
	}

	if g.elevation.IsActive(ctx, rc.UserID, presentedToken) {
		return pass, nil
	}

	if surface == SurfaceAJAX {
		g.audit.LogActionGated(ctx, rc.UserID, rule.ID, surface)
		if err := g.elevation.WriteBlockedNotice(ctx, rc.UserID, rule.ID, rule.Label); err != nil {
			return nil, err
		}
		return &Decision{
			Action: ActionBlock,
			Code:   CodeSudoRequired,
			Status: http.StatusForbidden,
			Rule:   rule,
		}, nil
	}

	// Admin surface: park the request and send the browser to the
	// challenge page.
	key, err := g.stash.Save(ctx, &stash.Entry{
		UserID: rc.UserID,
		RuleID: rule.ID,
		Method: rc.Method,
		URL:    requestURL(rc),
		Params: rc.Params,
	})
	if err != nil {
		return nil, err
	}

	g.audit.LogActionGated(ctx, rc.UserID, rule.ID, surface)

	q := url.Values{}
	q.Set("stash_key", key)
	return &Decision{
		Action:      ActionRedirect,
		RedirectURL: ChallengePath + "?" + q.Encode(),
		StashKey:    key,
		Rule:        rule,
	}, nil
}

// InterceptREST is the entry point for the REST, app-password, GraphQL, and
// XML-RPC surfaces. A pass decision means "no opinion, continue the normal
// pipeline".
func (g *Gate) InterceptREST(ctx context.Context, rc *RequestContext, presentedToken string) (*Decision, error) {
	surface := DetectSurface(rc)

	rule := MatchRequest(g.registry.Rules(), surface, rc)
	if rule == nil {
		return pass, nil
	}

	if rc.UserID == "" {
		return pass, nil
	}

	policy, err := ResolvePolicy(ctx, g.settings, surface, rc)
	if err != nil {
		return nil, err
	}

	return g.applyPolicy(ctx, policy, surface, rc.UserID, presentedToken, rule)
}

// InterceptHeadless gates CLI and cron invocations. These have no request
// shape to classify, so the harness names the rule it is about to execute.
func (g *Gate) InterceptHeadless(ctx context.Context, surface, userID string, rule *rules.Rule) (*Decision, error) {
	if rule == nil || rule.ID == "" || userID == "" {
		return pass, nil
	}

	rc := &RequestContext{Headless: surface, UserID: userID}
	policy, err := ResolvePolicy(ctx, g.settings, surface, rc)
	if err != nil {
		return nil, err
	}

	// Headless contexts cannot present an elevation cookie.
	return g.applyPolicy(ctx, policy, surface, userID, "", rule)
}

// applyPolicy turns a resolved tier into a decision and fires the audit
// events. A disabled surface blocks silently: there is no action to report
// as gated because elevation was never an option.
func (g *Gate) applyPolicy(ctx context.Context, policy settings.Policy, surface, userID, presentedToken string, rule *rules.Rule) (*Decision, error) {
	switch policy {
	case settings.PolicyUnrestricted:
		return pass, nil

	case settings.PolicyDisabled:
		return &Decision{
			Action: ActionBlock,
			Code:   CodeSudoDisabled,
			Status: http.StatusForbidden,
			Rule:   rule,
		}, nil
	}

	// Limited: an active elevation passes.
	if g.elevation.IsActive(ctx, userID, presentedToken) {
		return pass, nil
	}

	// The interactive cookie surface can still remediate, so it gets
	// sudo_required and a gated event; headless surfaces get sudo_blocked
	// and a blocked event.
	code := CodeSudoBlocked
	if surface == SurfaceREST {
		code = CodeSudoRequired
		g.audit.LogActionGated(ctx, userID, rule.ID, surface)
	} else {
		g.audit.LogActionBlocked(ctx, userID, rule.ID, surface)
	}

	return &Decision{
		Action: ActionBlock,
		Code:   code,
		Status: http.StatusForbidden,
		Rule:   rule,
	}, nil
}

// requestURL reconstructs the original URL with its query string for the
// stash entry.
func requestURL(rc *RequestContext) string {
	if len(rc.Params) == 0 {
		return rc.Path
	}
	return rc.Path + "?" + rc.Params.Encode()
}
