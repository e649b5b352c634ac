package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ads-users/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const pgUserSelect = `
        SELECT u.id, u.first_name, u.last_name, u.username, u.role, u.age,
               (SELECT COUNT(*) FROM ads a WHERE a.author_id = u.id AND a.is_published) AS total_ads
        FROM users u`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type userPgRepository struct {
	pool *pgxpool.Pool
}

// NewUserPgRepository returns a Postgres-backed implementation.
func NewUserPgRepository(pool *pgxpool.Pool) UserRepository {
	return &userPgRepository{pool: pool}
}

func (r *userPgRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *userPgRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		return []domain.User{}, nil
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, pgUserSelect+`
        ORDER BY u.username ASC, u.id ASC
        LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		var user domain.User
		if err := scanPgUser(rows, &user); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadLocations(ctx, r.pool, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *userPgRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, pgUserSelect+` WHERE u.id=$1`, id)
}

func (r *userPgRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, pgUserSelect+` WHERE u.username=$1`, username)
}

func (r *userPgRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := scanPgUser(r.pool.QueryRow(ctx, query, arg), &user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	users := []domain.User{user}
	if err := r.loadLocations(ctx, r.pool, users); err != nil {
		return nil, err
	}
	return &users[0], nil
}

func (r *userPgRepository) Create(ctx context.Context, user *domain.User, locationIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := r.checkLocations(ctx, tx, locationIDs); err != nil {
		return err
	}

	const query = `
        INSERT INTO users (first_name, last_name, username, role, age)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	if err := tx.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Role,
		user.Age,
	).Scan(&user.ID); err != nil {
		return mapPgError(err)
	}

	if err := r.linkLocations(ctx, tx, user.ID, locationIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *userPgRepository) Update(ctx context.Context, user *domain.User, locationIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := r.checkLocations(ctx, tx, locationIDs); err != nil {
		return err
	}

	const query = `
        UPDATE users SET first_name=$1, last_name=$2, username=$3, role=$4, age=$5
        WHERE id=$6`
	cmd, err := tx.Exec(ctx, query,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Role,
		user.Age,
		user.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_locations WHERE user_id=$1`, user.ID); err != nil {
		return fmt.Errorf("clear locations: %w", err)
	}
	if err := r.linkLocations(ctx, tx, user.ID, locationIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *userPgRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userPgRepository) checkLocations(ctx context.Context, q pgQuerier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.Query(ctx, `SELECT id FROM locations WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("check locations: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return &UnknownLocationsError{IDs: missing}
	}
	return nil
}

func (r *userPgRepository) linkLocations(ctx context.Context, tx pgx.Tx, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
        INSERT INTO user_locations (user_id, location_id)
        SELECT $1, unnest($2::bigint[])
        ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, query, userID, ids); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *userPgRepository) loadLocations(ctx context.Context, q pgQuerier, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	const query = `
        SELECT ul.user_id, l.id, l.name, COALESCE(l.lat, 0), COALESCE(l.lng, 0)
        FROM user_locations ul
        JOIN locations l ON l.id = ul.location_id
        WHERE ul.user_id = ANY($1)
        ORDER BY ul.user_id, l.id`
	rows, err := q.Query(ctx, query, userIDs(users))
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	defer rows.Close()

	byUser := make(map[int64][]domain.Location)
	for rows.Next() {
		var userID int64
		var loc domain.Location
		if err := rows.Scan(&userID, &loc.ID, &loc.Name, &loc.Lat, &loc.Lng); err != nil {
			return err
		}
		byUser[userID] = append(byUser[userID], loc)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	attachLocations(users, byUser)
	return nil
}

func scanPgUser(row pgx.Row, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.Role,
		&user.Age,
		&user.TotalAds,
	)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateUsername, pgErr.Detail)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrUnknownLocation, pgErr.Detail)
		}
	}
	return err
}
