package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/litshare/internal/domain"
)

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const tokenColumns = `id, family_id, token_hash, user_id, issued_at, expires_at, consumed`

func scanToken(row pgx.Row) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.FamilyID, &t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &t.Consumed)
	return t, err
}

const insertTokenSQL = `INSERT INTO refresh_tokens (id, family_id, token_hash, user_id, issued_at, expires_at, consumed)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)
RETURNING ` + tokenColumns

func (r *PostgresTokenRepo) Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	created, err := scanToken(r.db.QueryRow(ctx, insertTokenSQL,
		token.ID, token.FamilyID, token.TokenHash, token.UserID, token.IssuedAt, token.ExpiresAt))
	if err != nil {
		return domain.RefreshToken{}, mapError("insert refresh token", err)
	}
	return created, nil
}

func (r *PostgresTokenRepo) GetByHash(ctx context.Context, tokenHash string) (domain.RefreshToken, error) {
	t, err := scanToken(r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash))
	if err != nil {
		return domain.RefreshToken{}, mapError("get refresh token", err)
	}
	return t, nil
}

// Rotate serializes concurrent presentations of the same token on the row lock:
// the loser re-reads the row after the winner commits and sees it consumed.
func (r *PostgresTokenRepo) Rotate(ctx context.Context, tokenHash string, next domain.RefreshToken, check RotateCheck) (domain.RefreshToken, domain.RefreshToken, error) {
	var current, successor domain.RefreshToken
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		current, err = scanToken(tx.QueryRow(ctx,
			`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`, tokenHash))
		if err != nil {
			return mapError("lock refresh token", err)
		}
		if err := check(current); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET consumed = TRUE WHERE id = $1`, current.ID); err != nil {
			return mapError("consume refresh token", err)
		}
		successor, err = scanToken(tx.QueryRow(ctx, insertTokenSQL,
			next.ID, current.FamilyID, next.TokenHash, current.UserID, next.IssuedAt, next.ExpiresAt))
		if err != nil {
			return mapError("insert successor token", err)
		}
		return nil
	})
	if err != nil {
		return current, domain.RefreshToken{}, err
	}
	return current, successor, nil
}

func (r *PostgresTokenRepo) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET consumed = TRUE WHERE user_id = $1 AND NOT consumed`, userID)
	if err != nil {
		return 0, mapError("revoke user tokens", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresTokenRepo) RevokeFamily(ctx context.Context, userID int64, familyID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET consumed = TRUE WHERE family_id = $1 AND user_id = $2 AND NOT consumed`,
		familyID, userID)
	if err != nil {
		return 0, mapError("revoke token family", err)
	}
	return tag.RowsAffected(), nil
}
