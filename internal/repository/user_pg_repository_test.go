package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ads-users/internal/domain"
	"github.com/spec-kit/ads-users/internal/persistence"
)

func TestMapPgError(t *testing.T) {
	dup := mapPgError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", Detail: "Key (username)=(ada) already exists."}))
	assert.ErrorIs(t, dup, ErrDuplicateUsername)
	assert.Contains(t, dup.Error(), "(ada)")

	fk := mapPgError(&pgconn.PgError{Code: "23503", Detail: "Key (location_id)=(9) is not present."})
	assert.ErrorIs(t, fk, ErrUnknownLocation)

	check := &pgconn.PgError{Code: "23514"}
	assert.Same(t, error(check), mapPgError(check))

	plain := errors.New("connection reset")
	assert.Same(t, plain, mapPgError(plain))
}

// openPgTestPool connects to POSTGRES_TEST_DSN and empties the schema.
// The database behind the DSN is wiped on every call.
func openPgTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE ads, user_locations, users, locations RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func seedPgLocation(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, pool.QueryRow(context.Background(),
		`INSERT INTO locations (name, lat, lng) VALUES ($1, 55.75, 37.61) RETURNING id`, name).Scan(&id))
	return id
}

func seedPgAd(t *testing.T, pool *pgxpool.Pool, authorID int64, published bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO ads (name, author_id, price, is_published) VALUES ('ad', $1, 100, $2)`, authorID, published)
	require.NoError(t, err)
}

func TestUserPgRepository_CRUD(t *testing.T) {
	pool := openPgTestPool(t)
	repo := NewUserPgRepository(pool)
	ctx := context.Background()

	moscow := seedPgLocation(t, pool, "Moscow")
	kazan := seedPgLocation(t, pool, "Kazan")

	user := newUser("ada")
	require.NoError(t, repo.Create(ctx, user, []int64{moscow, kazan}))
	require.NotZero(t, user.ID)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, 30, got.Age)
	assert.Equal(t, []string{"Moscow", "Kazan"}, got.LocationNames())
	assert.Equal(t, 0, got.TotalAds)

	byName, err := repo.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	got.FirstName = "Augusta"
	got.Username = "augusta"
	got.Role = domain.RoleSeller
	got.Age = 36
	require.NoError(t, repo.Update(ctx, got, []int64{kazan}))

	updated, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", updated.FirstName)
	assert.Equal(t, "augusta", updated.Username)
	assert.Equal(t, domain.RoleSeller, updated.Role)
	assert.Equal(t, 36, updated.Age)
	assert.Equal(t, []string{"Kazan"}, updated.LocationNames())

	require.NoError(t, repo.Delete(ctx, user.ID))
	_, err = repo.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, user.ID), ErrNotFound)

	ghost := newUser("ghost")
	ghost.ID = user.ID
	assert.ErrorIs(t, repo.Update(ctx, ghost, nil), ErrNotFound)

	var links int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_locations WHERE user_id=$1`, user.ID).Scan(&links))
	assert.Zero(t, links)
}

func TestUserPgRepository_TotalAdsCountsPublishedOnly(t *testing.T) {
	pool := openPgTestPool(t)
	repo := NewUserPgRepository(pool)
	ctx := context.Background()

	seller := newUser("seller")
	require.NoError(t, repo.Create(ctx, seller, nil))
	other := newUser("other")
	require.NoError(t, repo.Create(ctx, other, nil))

	seedPgAd(t, pool, seller.ID, true)
	seedPgAd(t, pool, seller.ID, true)
	seedPgAd(t, pool, seller.ID, false)
	seedPgAd(t, pool, other.ID, false)

	list, err := repo.List(ctx, UserFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "other", list[0].Username)
	assert.Equal(t, 0, list[0].TotalAds)
	assert.Equal(t, "seller", list[1].Username)
	assert.Equal(t, 2, list[1].TotalAds)
	assert.NotNil(t, list[0].Locations)
}

func TestUserPgRepository_DuplicateUsername(t *testing.T) {
	pool := openPgTestPool(t)
	repo := NewUserPgRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("ada"), nil))
	assert.ErrorIs(t, repo.Create(ctx, newUser("ada"), nil), ErrDuplicateUsername)

	second := newUser("bob")
	require.NoError(t, repo.Create(ctx, second, nil))
	second.Username = "ada"
	assert.ErrorIs(t, repo.Update(ctx, second, nil), ErrDuplicateUsername)
}

func TestUserPgRepository_UnknownLocationRollsBack(t *testing.T) {
	pool := openPgTestPool(t)
	repo := NewUserPgRepository(pool)
	ctx := context.Background()

	known := seedPgLocation(t, pool, "Moscow")

	err := repo.Create(ctx, newUser("ada"), []int64{known, 404, 405})
	require.Error(t, err)
	var locErr *UnknownLocationsError
	require.True(t, errors.As(err, &locErr))
	assert.Equal(t, []int64{404, 405}, locErr.IDs)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
