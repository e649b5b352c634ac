package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ads-users/internal/config"
	"github.com/spec-kit/ads-users/internal/domain"
	"github.com/spec-kit/ads-users/internal/events"
	"github.com/spec-kit/ads-users/internal/paginate"
	"github.com/spec-kit/ads-users/internal/repository"
	apperrors "github.com/spec-kit/ads-users/pkg/util/errorutil"
)

// UserService coordinates user CRUD workflows.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	pageSize   int
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// UserInput carries every writable user field. Create and update both
// overwrite all of them.
type UserInput struct {
	FirstName   string
	LastName    string
	Username    string
	Role        domain.Role
	Age         int
	LocationIDs []int64
}

// UserPage is one page of the username-ordered user listing.
type UserPage struct {
	Items    []domain.User
	Number   int
	NumPages int
	Total    int
}

// NewUserService constructs the service. The page size is fixed for the
// lifetime of the service.
func NewUserService(cfg config.PaginationConfig, deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		pageSize:   cfg.TotalOnPage,
	}
}

// List returns the page named by rawPage. Missing or malformed values select
// the first page; out-of-range numbers select the last page.
func (s *UserService) List(ctx context.Context, rawPage string) (*UserPage, error) {
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	paginator := paginate.New(total, s.pageSize)
	page := paginator.GetPage(rawPage)

	items, err := s.users.List(ctx, repository.UserFilter{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &UserPage{
		Items:    items,
		Number:   page.Number,
		NumPages: paginator.NumPages(),
		Total:    total,
	}, nil
}

// Get fetches a single user.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	return user, nil
}

// Create persists a new user and returns it as stored, with TotalAds computed
// the same way as for reads.
func (s *UserService) Create(ctx context.Context, actor string, input UserInput) (*domain.User, error) {
	input = normalize(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, input.Username, 0); err != nil {
		return nil, err
	}

	user := &domain.User{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Username:  input.Username,
		Role:      input.Role,
		Age:       input.Age,
	}
	if err := s.users.Create(ctx, user, input.LocationIDs); err != nil {
		return nil, mapRepoError(err, 0)
	}

	created, err := s.Get(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewUserEvent(events.EventUserCreated, created.ID, actor, events.NewUserPayload(created)))
	s.logger.Info("user created", zap.Int64("user_id", created.ID), zap.String("actor", actor))
	return created, nil
}

// Update overwrites every writable field of an existing user.
func (s *UserService) Update(ctx context.Context, actor string, id int64, input UserInput) (*domain.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	input = normalize(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Username != existing.Username {
		if err := s.ensureUsernameFree(ctx, input.Username, id); err != nil {
			return nil, err
		}
	}

	existing.FirstName = input.FirstName
	existing.LastName = input.LastName
	existing.Username = input.Username
	existing.Role = input.Role
	existing.Age = input.Age
	if err := s.users.Update(ctx, existing, input.LocationIDs); err != nil {
		return nil, mapRepoError(err, id)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewUserEvent(events.EventUserUpdated, id, actor, events.NewUserPayload(updated)))
	s.logger.Info("user updated", zap.Int64("user_id", id), zap.String("actor", actor))
	return updated, nil
}

// Delete removes the user row and its location links.
func (s *UserService) Delete(ctx context.Context, actor string, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return mapRepoError(err, id)
	}
	s.publish(ctx, events.NewUserEvent(events.EventUserDeleted, id, actor, nil))
	s.logger.Info("user deleted", zap.Int64("user_id", id), zap.String("actor", actor))
	return nil
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string, selfID int64) error {
	existing, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return apperrors.MapError(err)
	case existing.ID != selfID:
		return usernameConflict(username)
	}
	return nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func normalize(input UserInput) UserInput {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Username = strings.TrimSpace(input.Username)

	seen := make(map[int64]struct{}, len(input.LocationIDs))
	ids := make([]int64, 0, len(input.LocationIDs))
	for _, id := range input.LocationIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	input.LocationIDs = ids
	return input
}

func validateInput(input UserInput) error {
	details := map[string]any{}
	if input.Username == "" {
		details["username"] = "must not be empty"
	}
	if !input.Role.Valid() {
		details["role"] = "must be one of buyer, seller, admin"
	}
	if input.Age < 0 {
		details["age"] = "must not be negative"
	}
	for _, id := range input.LocationIDs {
		if id <= 0 {
			details["locations"] = "must contain positive ids"
			break
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid user", details)
	}
	return nil
}

func usernameConflict(username string) error {
	return apperrors.NewConflict("username already taken", map[string]any{"username": username})
}

func mapRepoError(err error, id int64) error {
	var locErr *repository.UnknownLocationsError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("user", map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicateUsername):
		return apperrors.NewConflict("username already taken", nil)
	case errors.As(err, &locErr):
		return apperrors.NewValidationError("unknown locations", map[string]any{"locations": locErr.IDs})
	case errors.Is(err, repository.ErrUnknownLocation):
		return apperrors.NewValidationError("unknown locations", nil)
	}
	return apperrors.MapError(err)
}
