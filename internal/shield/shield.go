// Package shield wraps calls to a network AI service: outgoing text is
// masked before it leaves the process and the complete response is
// restored with the mapping captured at mask time.
package shield

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/flowpaste/internal/privacy"
	"go.uber.org/zap"
)

// Masker is the part of the privacy detector the shield needs
type Masker interface {
	Mask(text string) privacy.MaskResult
	ShieldRequired(provider string) bool
}

// Shield runs the mask-before-send / restore-after-receive protocol
type Shield struct {
	masker Masker
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// New creates a shield backed by store
func New(masker Masker, store Store, ttl time.Duration, logger *zap.Logger) *Shield {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shield{
		masker: masker,
		store:  store,
		ttl:    ttl,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Begin stores a session for one outgoing request. Text for a provider
// that needs the shield is masked; other text passes through unchanged
// with an empty mapping, so Finish works the same for both.
func (s *Shield) Begin(ctx context.Context, text, provider string) (*Envelope, error) {
	shielded := s.masker.ShieldRequired(provider)
	result := privacy.MaskResult{
		Masked:     text,
		Mapping:    privacy.MaskMapping{Mappings: map[string]string{}},
		ScanResult: privacy.ScanResult{Items: []privacy.Item{}},
	}
	if shielded {
		result = s.masker.Mask(text)
	}

	session := &Session{
		ID:        s.newID(),
		Provider:  provider,
		Mapping:   result.Mapping,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, session, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to save shield session: %w", err)
	}

	counts := make(map[string]int)
	for t, n := range result.ScanResult.Counts() {
		counts[string(t)] = n
	}

	s.logger.Debug("Shield session started",
		zap.String("session_id", session.ID),
		zap.String("provider", provider),
		zap.Bool("shielded", shielded),
		zap.Int("items", len(result.ScanResult.Items)),
	)

	return &Envelope{
		SessionID: session.ID,
		Masked:    result.Masked,
		Shielded:  shielded,
		Items:     len(result.ScanResult.Items),
		Counts:    counts,
	}, nil
}

// Finish restores the complete response and discards the session
func (s *Shield) Finish(ctx context.Context, sessionID, response string) (string, error) {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	restored := privacy.Restore(response, session.Mapping)

	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to delete shield session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	return restored, nil
}
