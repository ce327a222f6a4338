package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/remote"
)

// Default timeouts for the two remote round trips.
const (
	DefaultLookupTimeout = 3 * time.Second
	DefaultCreateTimeout = 3 * time.Second
)

// Resolution is the outcome of Resolve. When Fallback is true the identity
// itself is used as the user id and Reason says why.
type Resolution struct {
	UserID   string `json:"userId"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason,omitempty"`
}

// Resolver maps authenticated identities to internal user ids.
type Resolver struct {
	users         remote.UserRepository
	logger        *slog.Logger
	lookupTimeout time.Duration
	createTimeout time.Duration
	newID         func() string
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithTimeouts overrides the lookup and create timeouts.
func WithTimeouts(lookup, create time.Duration) Option {
	return func(r *Resolver) {
		if lookup > 0 {
			r.lookupTimeout = lookup
		}
		if create > 0 {
			r.createTimeout = create
		}
	}
}

// WithIDGenerator replaces the uuid generator for new mapping rows.
func WithIDGenerator(fn func() string) Option {
	return func(r *Resolver) {
		r.newID = fn
	}
}

// NewResolver creates a Resolver over users.
func NewResolver(users remote.UserRepository, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		users:         users,
		logger:        logger,
		lookupTimeout: DefaultLookupTimeout,
		createTimeout: DefaultCreateTimeout,
		newID:         func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bound is the longest Resolve can take before falling back.
func (r *Resolver) Bound() time.Duration {
	return r.lookupTimeout + r.createTimeout
}

// Resolve returns the user id for authID. It never fails for a non-empty
// identity: a timeout or remote error degrades to using authID directly.
func (r *Resolver) Resolve(ctx context.Context, authID string) (Resolution, error) {
	authID = strings.TrimSpace(authID)
	if authID == "" {
		return Resolution{}, apperr.ValidationFailed("identity", "authenticated identity is required")
	}

	found := Race(ctx, r.lookupTimeout, func(ctx context.Context) (*remote.UserRow, error) {
		return r.users.FindUserByAuthID(ctx, authID)
	})
	switch {
	case found.Status == StatusOK:
		return Resolution{UserID: found.Value.ID}, nil
	case found.Status == StatusTimedOut:
		return r.fallback(authID, "lookup timed out", nil), nil
	case !errors.Is(found.Err, apperr.ErrNotFound):
		return r.fallback(authID, "lookup failed", found.Err), nil
	}

	// No mapping yet: create one. The create window also covers the re-read
	// after losing an insert race to a concurrent resolver.
	created := Race(ctx, r.createTimeout, func(ctx context.Context) (string, error) {
		row := remote.UserRow{ID: r.newID(), AuthUserID: authID}
		err := r.users.InsertUser(ctx, row)
		if err == nil {
			return row.ID, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return "", err
		}
		existing, err := r.users.FindUserByAuthID(ctx, authID)
		if err != nil {
			return "", err
		}
		return existing.ID, nil
	})
	switch created.Status {
	case StatusOK:
		r.logger.Info("session: user mapping ready", slog.String("user_id", created.Value))
		return Resolution{UserID: created.Value}, nil
	case StatusTimedOut:
		return r.fallback(authID, "create timed out", nil), nil
	default:
		return r.fallback(authID, "create failed", created.Err), nil
	}
}

func (r *Resolver) fallback(authID, reason string, err error) Resolution {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.Warn("session: falling back to identity as user id", attrs...)
	return Resolution{UserID: authID, Fallback: true, Reason: reason}
}
