package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type orgStore struct {
	db *sql.DB
}

func (s *orgStore) Create(ctx context.Context, org *auth.Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name)
		values ($1, $2)
		returning created_at, updated_at
	`, org.ID, org.Name)
	if err := row.Scan(&org.CreatedAt, &org.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *orgStore) Get(ctx context.Context, id string) (*auth.Organization, error) {
	var org auth.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: organization %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *orgStore) List(ctx context.Context) ([]auth.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, created_at, updated_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Organization
	for rows.Next() {
		var org auth.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

func (s *orgStore) Update(ctx context.Context, id string, upd auth.OrganizationUpdate) (*auth.Organization, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	var org auth.Organization
	query := fmt.Sprintf(`
		update organizations
		set %s
		where id = $1
		returning id, name, created_at, updated_at
	`, strings.Join(sets, ", "))
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: organization %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &org, nil
}
