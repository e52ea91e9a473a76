package pg

import (
	"context"
	"database/sql"

	"authghost.org/internal/auth"
)

type revokedStore struct {
	db *sql.DB
}

// Insert relies on the primary key plus "on conflict do nothing" for its
// first-committer-wins guarantee: of any number of concurrent inserts with
// the same token id, exactly one reports an affected row.
func (s *revokedStore) Insert(ctx context.Context, tokenID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (token_id, user_id)
		values ($1, $2)
		on conflict (token_id) do nothing
	`, tokenID, userID)
	if err != nil {
		return false, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *revokedStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from revoked_tokens where token_id = $1)
	`, tokenID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *revokedStore) ListByUser(ctx context.Context, userID string) ([]auth.RevokedToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		select token_id, user_id, revoked_at
		from revoked_tokens
		where user_id = $1
		order by revoked_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.RevokedToken
	for rows.Next() {
		var rec auth.RevokedToken
		if err := rows.Scan(&rec.TokenID, &rec.UserID, &rec.RevokedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
