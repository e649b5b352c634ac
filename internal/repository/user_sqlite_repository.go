package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spec-kit/ads-users/internal/domain"
)

const sqliteUserSelect = `
        SELECT u.id, u.first_name, u.last_name, u.username, u.role, u.age,
               (SELECT COUNT(*) FROM ads a WHERE a.author_id = u.id AND a.is_published = 1) AS total_ads
        FROM users u`

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type userSQLiteRepository struct {
	db *sql.DB
}

var _ UserRepository = (*userSQLiteRepository)(nil)

// NewUserSQLiteRepository returns a SQLite-backed implementation. The handle is
// expected to be opened with persistence.OpenSQLite.
func NewUserSQLiteRepository(db *sql.DB) UserRepository {
	return &userSQLiteRepository{db: db}
}

func (r *userSQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *userSQLiteRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		return []domain.User{}, nil
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	result, err := r.query(ctx, r.db, sqliteUserSelect+`
        ORDER BY u.username ASC, u.id ASC
        LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if err := r.loadLocations(ctx, r.db, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *userSQLiteRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, sqliteUserSelect+` WHERE u.id=?`, id)
}

func (r *userSQLiteRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, sqliteUserSelect+` WHERE u.username=?`, username)
}

func (r *userSQLiteRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	users, err := r.query(ctx, r.db, query, arg)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	if err := r.loadLocations(ctx, r.db, users); err != nil {
		return nil, err
	}
	return &users[0], nil
}

func (r *userSQLiteRepository) query(ctx context.Context, q sqlQuerier, query string, args ...any) ([]domain.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		var user domain.User
		var role string
		if err := rows.Scan(
			&user.ID,
			&user.FirstName,
			&user.LastName,
			&user.Username,
			&role,
			&user.Age,
			&user.TotalAds,
		); err != nil {
			return nil, err
		}
		user.Role = domain.Role(role)
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userSQLiteRepository) Create(ctx context.Context, user *domain.User, locationIDs []int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.checkLocations(ctx, tx, locationIDs); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, username, role, age) VALUES (?, ?, ?, ?, ?)`,
		user.FirstName,
		user.LastName,
		user.Username,
		string(user.Role),
		user.Age,
	)
	if err != nil {
		return mapSQLiteError(err)
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if err = r.linkLocations(ctx, tx, user.ID, locationIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *userSQLiteRepository) Update(ctx context.Context, user *domain.User, locationIDs []int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.checkLocations(ctx, tx, locationIDs); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET first_name=?, last_name=?, username=?, role=?, age=? WHERE id=?`,
		user.FirstName,
		user.LastName,
		user.Username,
		string(user.Role),
		user.Age,
		user.ID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM user_locations WHERE user_id=?`, user.ID); err != nil {
		return fmt.Errorf("clear locations: %w", err)
	}
	if err = r.linkLocations(ctx, tx, user.ID, locationIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *userSQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userSQLiteRepository) checkLocations(ctx context.Context, q sqlQuerier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM locations WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
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

func (r *userSQLiteRepository) linkLocations(ctx context.Context, tx *sql.Tx, userID int64, ids []int64) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_locations (user_id, location_id) VALUES (?, ?)`, userID, id,
		); err != nil {
			return mapSQLiteError(err)
		}
	}
	return nil
}

func (r *userSQLiteRepository) loadLocations(ctx context.Context, q sqlQuerier, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := userIDs(users)
	rows, err := q.QueryContext(ctx, `
        SELECT ul.user_id, l.id, l.name, COALESCE(l.lat, 0), COALESCE(l.lng, 0)
        FROM user_locations ul
        JOIN locations l ON l.id = ul.location_id
        WHERE ul.user_id IN (`+placeholders(len(ids))+`)
        ORDER BY ul.user_id, l.id`, int64Args(ids)...)
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

func mapSQLiteError(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return errors.Join(ErrDuplicateUsername, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return errors.Join(ErrUnknownLocation, err)
		}
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
