package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/audit"
)

// CapabilityChecker detects drift between the live role-to-capability grants
// and the recorded baseline. A grant that appears without the baseline being
// refreshed is treated as tampering: a compromised addon or a direct DB edit
// widening a role's powers. Each drifted grant fires a capability-tampered
// audit event.
type CapabilityChecker interface {
	// CheckIntegrity compares live grants against the baseline and returns
	// the grants present live but absent from the baseline. An audit event
	// is emitted per drifted grant.
	CheckIntegrity(ctx context.Context) ([]RoleCapability, error)

	// RefreshBaseline replaces the baseline with the current live grants.
	// Called when an admin reviews the drift and blesses it.
	RefreshBaseline(ctx context.Context) error
}

// capabilityChecker implements CapabilityChecker.
type capabilityChecker struct {
	repo  UserRepository
	audit audit.AuditService
}

// NewCapabilityChecker creates a capability integrity checker.
func NewCapabilityChecker(repo UserRepository, auditSvc audit.AuditService) CapabilityChecker {
	return &capabilityChecker{repo: repo, audit: auditSvc}
}

// CheckIntegrity loads both grant sets, diffs them, and reports live grants
// missing from the baseline. Grants removed since the baseline are not
// flagged: narrowing a role is not an escalation.
func (c *capabilityChecker) CheckIntegrity(ctx context.Context) ([]RoleCapability, error) {
	live, err := c.repo.ListRoleCapabilities(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading live capability grants: %w", err))
	}

	baseline, err := c.repo.ListBaselineCapabilities(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading baseline capability grants: %w", err))
	}

	known := make(map[RoleCapability]struct{}, len(baseline))
	for _, g := range baseline {
		known[g] = struct{}{}
	}

	var drifted []RoleCapability
	for _, g := range live {
		if _, ok := known[g]; ok {
			continue
		}
		drifted = append(drifted, g)
		c.audit.LogCapabilityTampered(ctx, g.Role, g.Capability)
		slog.Warn("capability grant outside baseline",
			slog.String("role", g.Role),
			slog.String("capability", g.Capability),
		)
	}

	return drifted, nil
}

// RefreshBaseline snapshots the current live grants as the new baseline.
func (c *capabilityChecker) RefreshBaseline(ctx context.Context) error {
	live, err := c.repo.ListRoleCapabilities(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading live capability grants: %w", err))
	}
	return c.repo.ReplaceBaseline(ctx, live)
}
