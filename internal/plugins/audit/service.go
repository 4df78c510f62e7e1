package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillcms/sudogate/internal/apperror"
)

// perPage is the number of audit events shown per page in the admin feed.
const perPage = 50

// AuditService records and queries sudo security events. The typed Log*
// helpers are fire-and-forget: failures are logged via slog but never
// propagated, because an audit write must not block the gating decision or
// the re-authentication flow that triggered it.
type AuditService interface {
	// Log records a raw audit event. Returns an error for callers that need
	// to know the write happened (admin tooling); the Log* helpers ignore it.
	Log(ctx context.Context, event *Event) error

	// ListEvents returns paginated audit events, optionally filtered by type.
	ListEvents(ctx context.Context, eventType string, page int) ([]Event, int, error)

	// Typed fire-and-forget helpers, one per event the gate and the
	// elevation state machine emit.
	LogActivated(ctx context.Context, userID string, expiresAt time.Time, durationMinutes int)
	LogDeactivated(ctx context.Context, userID string)
	LogReauthFailed(ctx context.Context, userID string, attemptCount int)
	LogLockout(ctx context.Context, userID string, attemptCount int)
	LogActionGated(ctx context.Context, userID, ruleID, surface string)
	LogActionBlocked(ctx context.Context, userID, ruleID, surface string)
	LogCapabilityTampered(ctx context.Context, role, capability string)
}

// auditService implements AuditService.
type auditService struct {
	repo EventRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo EventRepository) AuditService {
	return &auditService{repo: repo}
}

// Log validates and persists an audit event.
func (s *auditService) Log(ctx context.Context, event *Event) error {
	if event.EventType == "" {
		return apperror.NewBadRequest("event type is required for audit event")
	}

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to write audit event",
			slog.String("event_type", event.EventType),
			slog.String("user_id", event.UserID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit event: %w", err))
	}

	return nil
}

// ListEvents returns the paginated audit feed. Pages are 1-indexed; invalid
// page numbers are clamped to 1.
func (s *auditService) ListEvents(ctx context.Context, eventType string, page int) ([]Event, int, error) {
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	events, total, err := s.repo.List(ctx, eventType, perPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing audit events: %w", err))
	}

	return events, total, nil
}

// --- Typed fire-and-forget helpers ---

func (s *auditService) LogActivated(ctx context.Context, userID string, expiresAt time.Time, durationMinutes int) {
	_ = s.Log(ctx, &Event{
		EventType: EventActivated,
		UserID:    userID,
		Details: map[string]any{
			"expires_at":       expiresAt.UTC().Format(time.RFC3339),
			"duration_minutes": durationMinutes,
		},
	})
}

func (s *auditService) LogDeactivated(ctx context.Context, userID string) {
	_ = s.Log(ctx, &Event{
		EventType: EventDeactivated,
		UserID:    userID,
	})
}

func (s *auditService) LogReauthFailed(ctx context.Context, userID string, attemptCount int) {
	_ = s.Log(ctx, &Event{
		EventType: EventReauthFailed,
		UserID:    userID,
		Details:   map[string]any{"attempt_count": attemptCount},
	})
}

func (s *auditService) LogLockout(ctx context.Context, userID string, attemptCount int) {
	_ = s.Log(ctx, &Event{
		EventType: EventLockout,
		UserID:    userID,
		Details:   map[string]any{"attempt_count": attemptCount},
	})
}

func (s *auditService) LogActionGated(ctx context.Context, userID, ruleID, surface string) {
	_ = s.Log(ctx, &Event{
		EventType: EventActionGated,
		UserID:    userID,
		RuleID:    ruleID,
		Surface:   surface,
	})
}

func (s *auditService) LogActionBlocked(ctx context.Context, userID, ruleID, surface string) {
	_ = s.Log(ctx, &Event{
		EventType: EventActionBlocked,
		UserID:    userID,
		RuleID:    ruleID,
		Surface:   surface,
	})
}

func (s *auditService) LogCapabilityTampered(ctx context.Context, role, capability string) {
	_ = s.Log(ctx, &Event{
		EventType: EventCapabilityTampered,
		Details: map[string]any{
			"role":       role,
			"capability": capability,
		},
	})
}
