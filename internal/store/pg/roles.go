package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type roleStore struct {
	db *sql.DB
}

func marshalPermissions(perms []string) ([]byte, error) {
	if perms == nil {
		perms = []string{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	return data, nil
}

func unmarshalPermissions(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, fmt.Errorf("%w: decode permission set: %v", auth.ErrDataIntegrity, err)
	}
	return perms, nil
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	permsJSON, err := marshalPermissions(role.Permissions)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, service_id, name, description, permissions)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, role.ID, role.ServiceID, role.Name, role.Description, permsJSON)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *roleStore) Get(ctx context.Context, id string) (*auth.Role, error) {
	var (
		role auth.Role
		raw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, service_id, name, description, permissions, created_at, updated_at
		from roles
		where id = $1
	`, id).Scan(&role.ID, &role.ServiceID, &role.Name, &role.Description, &raw, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if role.Permissions, err = unmarshalPermissions(raw); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) ListByService(ctx context.Context, serviceID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, service_id, name, description, permissions, created_at, updated_at
		from roles
		where service_id = $1
		order by name
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var (
			role auth.Role
			raw  []byte
		)
		if err := rows.Scan(&role.ID, &role.ServiceID, &role.Name, &role.Description, &raw, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if role.Permissions, err = unmarshalPermissions(raw); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func (s *roleStore) SetPermissions(ctx context.Context, id string, permissions []string) (*auth.Role, error) {
	permsJSON, err := marshalPermissions(permissions)
	if err != nil {
		return nil, err
	}
	var (
		role auth.Role
		raw  []byte
	)
	err = s.db.QueryRowContext(ctx, `
		update roles
		set permissions = $2, updated_at = now()
		where id = $1
		returning id, service_id, name, description, permissions, created_at, updated_at
	`, id, permsJSON).Scan(&role.ID, &role.ServiceID, &role.Name, &role.Description, &raw, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if role.Permissions, err = unmarshalPermissions(raw); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	// Assignments go first; user_roles.role_id carries no cascade, so the
	// explicit delete inside the transaction is what clears grants.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: role already assigned", auth.ErrConflict)
	}
	return nil
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: assignment", auth.ErrNotFound)
	}
	return nil
}

func (s *roleStore) ListAssignments(ctx context.Context, userID string) ([]auth.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.RoleAssignment
	for rows.Next() {
		var a auth.RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *roleStore) PermissionsForUser(ctx context.Context, userID, serviceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.permissions
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1 and r.service_id = $2
	`, userID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var union []string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		perms, err := unmarshalPermissions(raw)
		if err != nil {
			return nil, err
		}
		union = append(union, perms...)
	}
	return union, rows.Err()
}
