package auth

import (
	"context"
	"testing"
	"time"

	"github.com/quillcms/sudogate/internal/plugins/audit"
)

// mockAuditService records the typed events fired during a test.
type mockAuditService struct {
	tampered []audit.Event
}

func (m *mockAuditService) Log(ctx context.Context, event *audit.Event) error { return nil }
func (m *mockAuditService) ListEvents(ctx context.Context, eventType string, page int) ([]audit.Event, int, error) {
	return nil, 0, nil
}
func (m *mockAuditService) LogActivated(ctx context.Context, userID string, expiresAt time.Time, durationMinutes int) {
}
func (m *mockAuditService) LogDeactivated(ctx context.Context, userID string)                  {}
func (m *mockAuditService) LogReauthFailed(ctx context.Context, userID string, attempts int)   {}
func (m *mockAuditService) LogLockout(ctx context.Context, userID string, attempts int)        {}
func (m *mockAuditService) LogActionGated(ctx context.Context, userID, ruleID, surface string) {}
func (m *mockAuditService) LogActionBlocked(ctx context.Context, userID, ruleID, surface string) {
}

func (m *mockAuditService) LogCapabilityTampered(ctx context.Context, role, capability string) {
	m.tampered = append(m.tampered, audit.Event{
		EventType: audit.EventCapabilityTampered,
		Details:   map[string]any{"role": role, "capability": capability},
	})
}

func TestCheckIntegrity_NoDrift(t *testing.T) {
	grants := []RoleCapability{
		{Role: "editor", Capability: "posts.edit"},
		{Role: "admin", Capability: "users.delete"},
	}
	repo := &mockUserRepo{
		listGrantsFn:   func(ctx context.Context) ([]RoleCapability, error) { return grants, nil },
		listBaselineFn: func(ctx context.Context) ([]RoleCapability, error) { return grants, nil },
	}
	auditSvc := &mockAuditService{}

	checker := NewCapabilityChecker(repo, auditSvc)
	drifted, err := checker.CheckIntegrity(context.Background())
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if len(drifted) != 0 {
		t.Errorf("expected no drift, got %v", drifted)
	}
	if len(auditSvc.tampered) != 0 {
		t.Errorf("expected no audit events, got %d", len(auditSvc.tampered))
	}
}

func TestCheckIntegrity_NewGrantFlagged(t *testing.T) {
	repo := &mockUserRepo{
		listGrantsFn: func(ctx context.Context) ([]RoleCapability, error) {
			return []RoleCapability{
				{Role: "editor", Capability: "posts.edit"},
				{Role: "editor", Capability: "users.delete"},
			}, nil
		},
		listBaselineFn: func(ctx context.Context) ([]RoleCapability, error) {
			return []RoleCapability{
				{Role: "editor", Capability: "posts.edit"},
			}, nil
		},
	}
	auditSvc := &mockAuditService{}

	checker := NewCapabilityChecker(repo, auditSvc)
	drifted, err := checker.CheckIntegrity(context.Background())
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if len(drifted) != 1 {
		t.Fatalf("expected 1 drifted grant, got %d", len(drifted))
	}
	if drifted[0].Role != "editor" || drifted[0].Capability != "users.delete" {
		t.Errorf("unexpected drifted grant: %+v", drifted[0])
	}
	if len(auditSvc.tampered) != 1 {
		t.Errorf("expected 1 tampered audit event, got %d", len(auditSvc.tampered))
	}
}

func TestCheckIntegrity_RemovedGrantNotFlagged(t *testing.T) {
	repo := &mockUserRepo{
		listGrantsFn: func(ctx context.Context) ([]RoleCapability, error) {
			return []RoleCapability{{Role: "editor", Capability: "posts.edit"}}, nil
		},
		listBaselineFn: func(ctx context.Context) ([]RoleCapability, error) {
			return []RoleCapability{
				{Role: "editor", Capability: "posts.edit"},
				{Role: "editor", Capability: "posts.delete"},
			}, nil
		},
	}
	auditSvc := &mockAuditService{}

	checker := NewCapabilityChecker(repo, auditSvc)
	drifted, err := checker.CheckIntegrity(context.Background())
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if len(drifted) != 0 {
		t.Errorf("narrowed grants should not be flagged, got %v", drifted)
	}
}

func TestRefreshBaseline(t *testing.T) {
	live := []RoleCapability{{Role: "admin", Capability: "settings.update"}}
	var replaced []RoleCapability

	repo := &mockUserRepo{
		listGrantsFn: func(ctx context.Context) ([]RoleCapability, error) { return live, nil },
		replaceBaselineFn: func(ctx context.Context, grants []RoleCapability) error {
			replaced = grants
			return nil
		},
	}

	checker := NewCapabilityChecker(repo, &mockAuditService{})
	if err := checker.RefreshBaseline(context.Background()); err != nil {
		t.Fatalf("RefreshBaseline failed: %v", err)
	}
	if len(replaced) != 1 || replaced[0].Capability != "settings.update" {
		t.Errorf("baseline not replaced with live grants: %v", replaced)
	}
}
