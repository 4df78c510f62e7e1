package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/quillcms/sudogate/internal/apperror"
)

// SettingsService parses the site_settings rows into a typed SudoSettings
// struct and caches the result per process. The gate reads settings on every
// gated request, so hitting MariaDB each time is not acceptable; stale reads
// are tolerated until Invalidate is called by a writer.
type SettingsService interface {
	// GetSudoSettings returns the cached sudo configuration, loading it from
	// the repository on first call or after Invalidate.
	GetSudoSettings(ctx context.Context) (*SudoSettings, error)

	// UpdateSudoSettings validates and persists updated sudo configuration,
	// then invalidates the cache.
	UpdateSudoSettings(ctx context.Context, s *SudoSettings) error

	// Invalidate clears the cached settings so the next read reloads them.
	Invalidate()
}

// settingsService implements SettingsService.
type settingsService struct {
	repo SettingsRepository

	mu     sync.RWMutex
	cached *SudoSettings
}

// NewSettingsService creates a new settings service.
func NewSettingsService(repo SettingsRepository) SettingsService {
	return &settingsService{repo: repo}
}

// GetSudoSettings returns the cached configuration, building it on demand.
// Missing or unparseable values fall back to safe defaults: ten minutes of
// elevation and limited policy everywhere.
func (s *settingsService) GetSudoSettings(ctx context.Context) (*SudoSettings, error) {
	s.mu.RLock()
	if s.cached != nil {
		cached := s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	loaded := &SudoSettings{
		DurationMinutes: parseInt(all[KeyDurationMinutes], DefaultDurationMinutes),
		RESTAppPassword: parsePolicy(all[KeyPolicyAppPass]),
		CLI:             parsePolicy(all[KeyPolicyCLI]),
		Cron:            parsePolicy(all[KeyPolicyCron]),
		XMLRPC:          parsePolicy(all[KeyPolicyXMLRPC]),
		GraphQL:         parsePolicy(all[KeyPolicyGraphQL]),
	}

	s.mu.Lock()
	s.cached = loaded
	s.mu.Unlock()
	return loaded, nil
}

// UpdateSudoSettings validates the configuration and persists each value as
// a separate key-value row, then drops the cache.
func (s *settingsService) UpdateSudoSettings(ctx context.Context, cfg *SudoSettings) error {
	if cfg.DurationMinutes < 1 {
		return apperror.NewBadRequest("sudo duration must be at least one minute")
	}
	policies := map[string]Policy{
		"rest_app_password": cfg.RESTAppPassword,
		"cli":               cfg.CLI,
		"cron":              cfg.Cron,
		"xmlrpc":            cfg.XMLRPC,
		"graphql":           cfg.GraphQL,
	}
	for surface, p := range policies {
		if !p.Valid() {
			return apperror.NewBadRequest(fmt.Sprintf("invalid policy %q for surface %s", p, surface))
		}
	}

	// Persist each setting individually so partial updates work.
	values := map[string]string{
		KeyDurationMinutes: strconv.Itoa(cfg.DurationMinutes),
		KeyPolicyAppPass:   string(cfg.RESTAppPassword),
		KeyPolicyCLI:       string(cfg.CLI),
		KeyPolicyCron:      string(cfg.Cron),
		KeyPolicyXMLRPC:    string(cfg.XMLRPC),
		KeyPolicyGraphQL:   string(cfg.GraphQL),
	}
	for key, value := range values {
		if err := s.repo.Set(ctx, key, value); err != nil {
			return fmt.Errorf("persisting %s: %w", key, err)
		}
	}

	s.Invalidate()
	return nil
}

// Invalidate drops the cached settings.
func (s *settingsService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// --- Parsing Helpers ---

// parseInt parses a string to int, returning the fallback on failure.
func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// parsePolicy parses a stored policy value, defaulting to limited. An
// unrecognized value must never silently open a surface up.
func parsePolicy(s string) Policy {
	p := Policy(s)
	if !p.Valid() {
		return PolicyLimited
	}
	return p
}
