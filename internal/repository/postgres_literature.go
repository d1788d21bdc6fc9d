package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/litshare/internal/domain"
)

// PostgresLiteratureRepo implements LiteratureRepository.
type PostgresLiteratureRepo struct {
	db *pgxpool.Pool
}

func NewPostgresLiteratureRepo(pool *pgxpool.Pool) *PostgresLiteratureRepo {
	return &PostgresLiteratureRepo{db: pool}
}

const literatureColumns = `id, group_id, title, storage_ref, size_bytes, uploader_id, created_at,
deleted_at, deleted_by, delete_reason, restored_at, restored_by`

func scanLiterature(row pgx.Row) (domain.Literature, error) {
	var l domain.Literature
	err := row.Scan(
		&l.ID,
		&l.GroupID,
		&l.Title,
		&l.StorageRef,
		&l.SizeBytes,
		&l.UploaderID,
		&l.CreatedAt,
		&l.DeletedAt,
		&l.DeletedBy,
		&l.DeleteReason,
		&l.RestoredAt,
		&l.RestoredBy,
	)
	return l, err
}

func (r *PostgresLiteratureRepo) Create(ctx context.Context, lit domain.Literature) (domain.Literature, error) {
	const query = `INSERT INTO literature (id, group_id, title, storage_ref, size_bytes, uploader_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + literatureColumns
	created, err := scanLiterature(r.db.QueryRow(ctx, query,
		lit.ID, lit.GroupID, lit.Title, lit.StorageRef, lit.SizeBytes, lit.UploaderID))
	if err != nil {
		return domain.Literature{}, mapError("create literature", err)
	}
	return created, nil
}

func (r *PostgresLiteratureRepo) Get(ctx context.Context, litID int64) (domain.Literature, error) {
	l, err := scanLiterature(r.db.QueryRow(ctx, `SELECT `+literatureColumns+` FROM literature WHERE id = $1`, litID))
	if err != nil {
		return domain.Literature{}, mapError("get literature", err)
	}
	return l, nil
}

// Transition holds a row lock for the whole read-check-write so concurrent
// transitions on the same record serialize. Membership reads made by fn run on
// the transaction's connection. Cancelling ctx rolls back.
func (r *PostgresLiteratureRepo) Transition(ctx context.Context, litID int64, fn TransitionFunc) (domain.Literature, error) {
	var result domain.Literature
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := scanLiterature(tx.QueryRow(ctx,
			`SELECT `+literatureColumns+` FROM literature WHERE id = $1 FOR UPDATE`, litID))
		if err != nil {
			return mapError("lock literature", err)
		}

		next, err := fn(current, txMemberships{tx: tx})
		if err != nil {
			return err
		}

		const update = `UPDATE literature
SET deleted_at = $2, deleted_by = $3, delete_reason = $4, restored_at = $5, restored_by = $6
WHERE id = $1`
		if _, err := tx.Exec(ctx, update,
			current.ID, next.DeletedAt, next.DeletedBy, next.DeleteReason, next.RestoredAt, next.RestoredBy,
		); err != nil {
			return mapError("update literature", err)
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.Literature{}, err
	}
	return result, nil
}

func (r *PostgresLiteratureRepo) ListByState(ctx context.Context, groupID int64, state domain.LiteratureState) ([]domain.Literature, error) {
	predicate := "deleted_at IS NULL"
	if state == domain.StateDeleted {
		predicate = "deleted_at IS NOT NULL"
	}
	query := `SELECT ` + literatureColumns + ` FROM literature
WHERE group_id = $1 AND ` + predicate + `
ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, mapError("list literature", err)
	}
	defer rows.Close()

	items := make([]domain.Literature, 0)
	for rows.Next() {
		l, err := scanLiterature(rows)
		if err != nil {
			return nil, mapError("scan literature", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list literature", err)
	}
	return items, nil
}

const usageAggregates = `COUNT(l.id) FILTER (WHERE l.deleted_at IS NULL),
COALESCE(SUM(l.size_bytes) FILTER (WHERE l.deleted_at IS NULL), 0)::bigint,
COUNT(l.id) FILTER (WHERE l.deleted_at IS NOT NULL),
COALESCE(SUM(l.size_bytes) FILTER (WHERE l.deleted_at IS NOT NULL), 0)::bigint`

func (r *PostgresLiteratureRepo) GroupUsage(ctx context.Context, groupID int64) (domain.GroupUsage, error) {
	usage := domain.GroupUsage{GroupID: groupID}
	err := r.db.QueryRow(ctx, `SELECT `+usageAggregates+` FROM literature l WHERE l.group_id = $1`, groupID).Scan(
		&usage.ActiveCount,
		&usage.ActiveBytes,
		&usage.DeletedCount,
		&usage.DeletedBytes,
	)
	if err != nil {
		return domain.GroupUsage{}, mapError("group usage", err)
	}
	return usage, nil
}

func (r *PostgresLiteratureRepo) UsageByGroup(ctx context.Context) ([]domain.GroupUsage, error) {
	query := `SELECT g.id, ` + usageAggregates + `
FROM research_groups g
LEFT JOIN literature l ON l.group_id = g.id
GROUP BY g.id
ORDER BY g.id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapError("usage by group", err)
	}
	defer rows.Close()

	result := make([]domain.GroupUsage, 0)
	for rows.Next() {
		var u domain.GroupUsage
		if err := rows.Scan(&u.GroupID, &u.ActiveCount, &u.ActiveBytes, &u.DeletedCount, &u.DeletedBytes); err != nil {
			return nil, mapError("scan usage", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage by group: %w", err)
	}
	return result, nil
}
