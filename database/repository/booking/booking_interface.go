package bookingRepo

import (
	"context"
	"errors"
	"time"

	"findmycoach/models"
)

// Sentinel errors surfaced by the repository. Services map these onto the
// user-facing error taxonomy.
var (
	// ErrConflict means the guarded update matched no document: the booking's
	// status or version no longer equals what the caller observed.
	ErrConflict = errors.New("booking status/version precondition failed")
	// ErrNotFound means no booking exists for the given id.
	ErrNotFound = errors.New("booking not found")
)

// TransitionSet is the write applied by a successful guarded transition.
// AuthorizationRef is set at most once; the repository refuses to reassign it.
type TransitionSet struct {
	Status           string
	AuthorizationRef string
}

// BookingRepository defines the interface for booking data access. Every
// status write goes through Transition, a compare-and-swap on (id, status,
// version); plain updates to status are not exposed.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	Transition(ctx context.Context, id, expectedStatus string, expectedVersion int64, set TransitionSet) (*models.Booking, error)
	AttachPayoutRef(ctx context.Context, id, payoutRef string) (bool, error)
	CountOverlapping(ctx context.Context, coachID string, start, end time.Time, statuses []string) (int64, error)
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	ListByParty(ctx context.Context, userID string) ([]models.Booking, error)
}
