package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/vocanote/internal/dictation"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/session"
	"github.com/starford/vocanote/internal/update"
)

// Service bundles the components the handlers drive.
type Service struct {
	Notes    *notestore.Store
	Resolver *session.Resolver
	Recorder *dictation.Recorder
	Updates  *update.Session
	// Live is nil when no streaming transcription endpoint is configured.
	Live   *LiveFeed
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(notes *notestore.Store, resolver *session.Resolver, recorder *dictation.Recorder, updates *update.Session, logger *slog.Logger) *Service {
	return &Service{
		Notes:    notes,
		Resolver: resolver,
		Recorder: recorder,
		Updates:  updates,
		logger:   logger,
	}
}

// StartSession resolves authID to a user, loads that user's notes and
// folders, and confirms the running bundle to the shell. A fallback
// resolution still loads, keyed by the identity itself.
func (s *Service) StartSession(ctx context.Context, authID string) (session.Resolution, error) {
	res, err := s.Resolver.Resolve(ctx, authID)
	if err != nil {
		return res, err
	}
	if err := s.Notes.LoadAll(ctx, res.UserID); err != nil {
		return res, fmt.Errorf("api: load notes: %w", err)
	}
	if err := s.Updates.NotifyReady(ctx); err != nil {
		s.logger.Warn("notify ready failed", slog.String("error", err.Error()))
	}
	s.logger.Info("session started",
		slog.String("user_id", res.UserID),
		slog.Bool("fallback", res.Fallback))
	return res, nil
}
