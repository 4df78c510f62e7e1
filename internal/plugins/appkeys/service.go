package appkeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// keyBytes is the number of random bytes in a generated credential.
const keyBytes = 32

// keyPrefixLen is the length of the prefix stored for credential lookup.
const keyPrefixLen = 8

// rawKeyPrefix brands generated credentials so they are recognizable in
// config files and secret scanners.
const rawKeyPrefix = "quill_"

// AppKeyService handles application password lifecycle and authentication.
type AppKeyService interface {
	// CreateKey generates a credential for the user. The raw secret is only
	// present in the returned result.
	CreateKey(ctx context.Context, userID, name string) (*CreateAppPasswordResult, error)

	// ListKeys returns the user's credentials, hashes omitted.
	ListKeys(ctx context.Context, userID string) ([]AppPassword, error)

	// RevokeKey deletes a credential. Owners revoke their own; admins may
	// revoke anyone's, which the handler enforces.
	RevokeKey(ctx context.Context, id int) error

	// SetPolicy sets the per-credential sudo policy override. Empty string
	// restores inheritance of the global setting.
	SetPolicy(ctx context.Context, id int, policy string) error

	// AuthenticateKey validates a raw credential and returns its record.
	AuthenticateKey(ctx context.Context, rawKey string) (*AppPassword, error)
}

// appKeyService implements AppKeyService.
type appKeyService struct {
	repo AppPasswordRepository
}

// NewAppKeyService creates a new application password service.
func NewAppKeyService(repo AppPasswordRepository) AppKeyService {
	return &appKeyService{repo: repo}
}

// CreateKey generates a new credential with bcrypt-hashed storage.
func (s *appKeyService) CreateKey(ctx context.Context, userID, name string) (*CreateAppPasswordResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.NewBadRequest("credential name is required")
	}
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}

	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating credential: %w", err))
	}
	rawKey := rawKeyPrefix + hex.EncodeToString(raw)
	prefix := rawKey[:keyPrefixLen]

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing credential: %w", err))
	}

	key := &AppPassword{
		UserID:    userID,
		Name:      name,
		KeyPrefix: prefix,
		KeyHash:   string(hash),
		Policy:    string(settings.PolicyInherit),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	slog.Info("application password created",
		slog.String("prefix", prefix),
		slog.String("user_id", userID),
	)

	return &CreateAppPasswordResult{AppPassword: key, RawKey: rawKey}, nil
}

// ListKeys returns all credentials owned by the user.
func (s *appKeyService) ListKeys(ctx context.Context, userID string) ([]AppPassword, error) {
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// RevokeKey deletes a credential permanently.
func (s *appKeyService) RevokeKey(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("application password revoked", slog.Int("id", id))
	return nil
}

// SetPolicy validates and stores the per-credential override.
func (s *appKeyService) SetPolicy(ctx context.Context, id int, policy string) error {
	p := settings.Policy(policy)
	if p != settings.PolicyInherit && !p.Valid() {
		return apperror.NewBadRequest(fmt.Sprintf("invalid policy %q", policy))
	}
	if err := s.repo.UpdatePolicy(ctx, id, policy); err != nil {
		return err
	}
	slog.Info("application password policy updated",
		slog.Int("id", id),
		slog.String("policy", policy),
	)
	return nil
}

// AuthenticateKey validates a raw credential: prefix lookup, then bcrypt
// verification of the full value. Lookup and verification failures return
// the same error.
func (s *appKeyService) AuthenticateKey(ctx context.Context, rawKey string) (*AppPassword, error) {
	if len(rawKey) < keyPrefixLen {
		return nil, apperror.NewForbidden("invalid credential")
	}

	key, err := s.repo.FindByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return nil, apperror.NewForbidden("invalid credential")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)); err != nil {
		return nil, apperror.NewForbidden("invalid credential")
	}

	// Best effort; a failed touch must not fail the authentication.
	if err := s.repo.TouchLastUsed(ctx, key.ID); err != nil {
		slog.Warn("failed to record credential use", slog.Int("id", key.ID), slog.Any("error", err))
	}

	return key, nil
}
