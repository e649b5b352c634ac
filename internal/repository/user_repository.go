package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/ads-users/internal/domain"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrUnknownLocation is returned when a location link points to no location row.
	ErrUnknownLocation = errors.New("unknown location")
)

// UnknownLocationsError lists the location ids that could not be linked.
type UnknownLocationsError struct {
	IDs []int64
}

func (e *UnknownLocationsError) Error() string {
	return fmt.Sprintf("unknown location ids %v", e.IDs)
}

func (e *UnknownLocationsError) Unwrap() error {
	return ErrUnknownLocation
}

// UserRepository defines persistence access for marketplace users. Every read
// returns users with their locations loaded and TotalAds computed at query time.
type UserRepository interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User, locationIDs []int64) error
	Update(ctx context.Context, user *domain.User, locationIDs []int64) error
	Delete(ctx context.Context, id int64) error
}

// UserFilter defines the window for user listing. Results are ordered by username.
type UserFilter struct {
	Limit  int
	Offset int
}

func missingIDs(want []int64, found map[int64]struct{}) []int64 {
	var missing []int64
	for _, id := range want {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func attachLocations(users []domain.User, byUser map[int64][]domain.Location) {
	for i := range users {
		locs := byUser[users[i].ID]
		if locs == nil {
			locs = []domain.Location{}
		}
		users[i].Locations = locs
	}
}

func userIDs(users []domain.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
