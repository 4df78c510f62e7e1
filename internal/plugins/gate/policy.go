package gate

import (
	"context"

	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// ResolvePolicy determines the gating tier for a classified request.
//
// The interactive surfaces (admin, ajax, cookie REST) are always limited:
// they have a redirect-based remediation path, so there is nothing to
// configure. The app-password surface honors a per-credential override
// before the global setting; the remaining headless surfaces use their
// global setting directly.
func ResolvePolicy(ctx context.Context, svc settings.SettingsService, surface string, rc *RequestContext) (settings.Policy, error) {
	switch surface {
	case SurfaceAdmin, SurfaceAJAX, SurfaceREST:
		return settings.PolicyLimited, nil
	}

	if surface == SurfaceAppPassword && rc.CredentialPolicy.Valid() {
		return rc.CredentialPolicy, nil
	}

	cfg, err := svc.GetSudoSettings(ctx)
	if err != nil {
		return "", err
	}
	return cfg.SurfacePolicy(surface), nil
}
