// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ndmitriev/ratepulse/internal/domain"
)

// ReferenceStore holds the shared institution/topic catalog.
type ReferenceStore interface {
	// EnsureInstitution inserts the named institution if absent and
	// returns its id either way. Safe under concurrent first-use of
	// the same name by different users.
	EnsureInstitution(ctx context.Context, name string) (int64, error)

	// EnsureTopic inserts the named topic if absent and returns its id.
	EnsureTopic(ctx context.Context, name string) (int64, error)

	// LinkTopicToInstitution records the association. Idempotent for
	// an existing pair.
	LinkTopicToInstitution(ctx context.Context, institutionID, topicID int64) error

	// ListInstitutions returns all institutions ordered by id.
	ListInstitutions(ctx context.Context) ([]domain.RefEntry, error)

	// ListTopicsForInstitution returns the topics linked to the
	// institution, ordered by id.
	ListTopicsForInstitution(ctx context.Context, institutionID int64) ([]domain.RefEntry, error)

	// InstitutionName resolves an id to a name. Returns
	// domain.ErrNotFound for an unknown id.
	InstitutionName(ctx context.Context, id int64) (string, error)

	// TopicName resolves an id to a name.
	TopicName(ctx context.Context, id int64) (string, error)

	// InstitutionID resolves a name to an id.
	InstitutionID(ctx context.Context, name string) (int64, error)

	// TopicID resolves a name to an id.
	TopicID(ctx context.Context, name string) (int64, error)
}

// SessionStore holds one persistent dialog-state row per user.
type SessionStore interface {
	// EnsureSession creates the user's session row if absent.
	EnsureSession(ctx context.Context, userID int64) error

	// GetSession retrieves the user's session. Returns
	// domain.ErrNotFound for an unknown user.
	GetSession(ctx context.Context, userID int64) (*domain.UserSession, error)

	// UpdateSession applies a partial patch to the session row.
	UpdateSession(ctx context.Context, userID int64, patch domain.SessionPatch) error

	// SetAwaiting records an outstanding prompt: the awaiting mode,
	// the prompt (response) message id, and the originating request
	// message id when one exists.
	SetAwaiting(ctx context.Context, userID int64, mode domain.AwaitingMode, responseMessageID int64, requestMessageID *int64) error

	// ClearAwaiting resets the awaiting mode and both tracked message
	// ids in one write.
	ClearAwaiting(ctx context.Context, userID int64) error

	// ListSessionUserIDs returns every known user id.
	ListSessionUserIDs(ctx context.Context) ([]int64, error)
}

// RatingLog is the append-only record of submissions.
type RatingLog interface {
	// AppendRating stores one submission. The rating's ID is assigned
	// by the store.
	AppendRating(ctx context.Context, userID, institutionID, topicID int64, score int, at time.Time) error

	// CountRatings returns the total number of recorded ratings.
	CountRatings(ctx context.Context) (int64, error)
}

// Repository groups the three store contracts behind one connection.
type Repository interface {
	ReferenceStore
	SessionStore
	RatingLog

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
