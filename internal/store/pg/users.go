package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, organization_id, email, password_hash, is_active,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID, &user.OrganizationID, &user.Email, &user.PasswordHash, &user.Active,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *userStore) Create(ctx context.Context, user *auth.User) error {
	if user.ID == "" {
		user.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, organization_id, email, password_hash, is_active)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, user.ID, user.OrganizationID, user.Email, user.PasswordHash, user.Active)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *userStore) Get(ctx context.Context, id string) (*auth.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return user, err
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", auth.ErrNotFound)
	}
	return user, err
}

func (s *userStore) ListByOrganization(ctx context.Context, orgID string) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization_id = $1 order by email`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) (*auth.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		update users
		set is_active = $2, updated_at = now()
		where id = $1
		returning `+userColumns, id, active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return user, err
}

func (s *userStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, updated_at = now()
		where id = $1
	`, id, hash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return nil
}

// RecordLoginFailure increments and reads the counter in one statement; the
// row lock serializes concurrent failures so every caller sees a distinct
// count and the lockout threshold cannot be skipped over.
func (s *userStore) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `
		update users
		set failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		where id = $1
		returning failed_login_attempts
	`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *userStore) Lock(ctx context.Context, id string, until time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set locked_until = $2, updated_at = now()
		where id = $1
	`, id, until.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return nil
}

func (s *userStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_login_attempts = 0, locked_until = null, last_login_at = $2, updated_at = now()
		where id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return nil
}
