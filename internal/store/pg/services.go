package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type serviceStore struct {
	db *sql.DB
}

func (s *serviceStore) Create(ctx context.Context, svc *auth.Service) error {
	if svc.ID == "" {
		svc.ID = ids.New()
	}
	if svc.Status == "" {
		svc.Status = auth.ServiceStatusActive
	}
	row := s.db.QueryRowContext(ctx, `
		insert into services (id, name, status)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, svc.ID, svc.Name, svc.Status)
	if err := row.Scan(&svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *serviceStore) Get(ctx context.Context, id string) (*auth.Service, error) {
	return s.getBy(ctx, "id", id)
}

func (s *serviceStore) GetByName(ctx context.Context, name string) (*auth.Service, error) {
	return s.getBy(ctx, "name", name)
}

func (s *serviceStore) getBy(ctx context.Context, column, value string) (*auth.Service, error) {
	var svc auth.Service
	query := fmt.Sprintf(`
		select id, name, status, created_at, updated_at
		from services
		where %s = $1
	`, column)
	err := s.db.QueryRowContext(ctx, query, value).
		Scan(&svc.ID, &svc.Name, &svc.Status, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %s", auth.ErrNotFound, value)
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *serviceStore) List(ctx context.Context) ([]auth.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, status, created_at, updated_at
		from services
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Service
	for rows.Next() {
		var svc auth.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Status, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

func (s *serviceStore) SetStatus(ctx context.Context, id, status string) (*auth.Service, error) {
	var svc auth.Service
	err := s.db.QueryRowContext(ctx, `
		update services
		set status = $2, updated_at = now()
		where id = $1
		returning id, name, status, created_at, updated_at
	`, id, status).Scan(&svc.ID, &svc.Name, &svc.Status, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}
