package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/litshare/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository       = (*PostgresUserRepo)(nil)
	_ GroupRepository      = (*PostgresGroupRepo)(nil)
	_ MembershipRepository = (*PostgresGroupRepo)(nil)
	_ LiteratureRepository = (*PostgresLiteratureRepo)(nil)
	_ TokenRepository      = (*PostgresTokenRepo)(nil)
	_ KeyRepository        = (*PostgresKeyRepo)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError translates driver errors into repository sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, username, phone, password_hash, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// Create inserts a user. Usernames and phones share one login namespace, so
// neither value may match an existing username or phone. Advisory locks on
// both identifiers serialize registrations that could collide across columns.
func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const insert = `INSERT INTO users (id, username, phone, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

	var created domain.User
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		first, second := user.Username, user.Phone
		if second < first {
			first, second = second, first
		}
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1)), pg_advisory_xact_lock(hashtext($2))`,
			first, second); err != nil {
			return mapError("lock identifiers", err)
		}

		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username IN ($1, $2) OR phone IN ($1, $2))`,
			user.Username, user.Phone,
		).Scan(&taken); err != nil {
			return mapError("check identifiers", err)
		}
		if taken {
			return fmt.Errorf("create user: %w", ErrConflict)
		}

		u, err := scanUser(tx.QueryRow(ctx, insert, user.ID, user.Username, user.Phone, user.PasswordHash))
		if err != nil {
			return mapError("create user", err)
		}
		created = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return created, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return domain.User{}, mapError("get user by id", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return domain.User{}, mapError("get user by username", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
	if err != nil {
		return domain.User{}, mapError("get user by phone", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return mapError("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	return nil
}

// PostgresGroupRepo implements GroupRepository and MembershipRepository.
type PostgresGroupRepo struct {
	db *pgxpool.Pool
}

func NewPostgresGroupRepo(pool *pgxpool.Pool) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: pool}
}

const groupColumns = `id, name, institution, invite_code, created_at`

func scanGroup(row pgx.Row) (domain.Group, error) {
	var g domain.Group
	err := row.Scan(&g.ID, &g.Name, &g.Institution, &g.InviteCode, &g.CreatedAt)
	return g, err
}

func (r *PostgresGroupRepo) CreateGroup(ctx context.Context, group domain.Group, owner domain.Membership) (domain.Group, error) {
	var created domain.Group
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		const insertGroup = `INSERT INTO research_groups (id, name, institution, invite_code)
VALUES ($1, $2, $3, $4)
RETURNING ` + groupColumns
		g, err := scanGroup(tx.QueryRow(ctx, insertGroup, group.ID, group.Name, group.Institution, group.InviteCode))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO group_memberships (user_id, group_id, role) VALUES ($1, $2, $3)`,
			owner.UserID, g.ID, string(owner.Role)); err != nil {
			return err
		}
		created = g
		return nil
	})
	if err != nil {
		return domain.Group{}, mapError("create group", err)
	}
	return created, nil
}

func (r *PostgresGroupRepo) GetGroup(ctx context.Context, groupID int64) (domain.Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM research_groups WHERE id = $1`, groupID))
	if err != nil {
		return domain.Group{}, mapError("get group", err)
	}
	return g, nil
}

func (r *PostgresGroupRepo) GetGroupByInviteCode(ctx context.Context, code string) (domain.Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM research_groups WHERE invite_code = $1`, code))
	if err != nil {
		return domain.Group{}, mapError("get group by invite code", err)
	}
	return g, nil
}

func (r *PostgresGroupRepo) CountGroups(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM research_groups`).Scan(&n); err != nil {
		return 0, mapError("count groups", err)
	}
	return n, nil
}

func (r *PostgresGroupRepo) ListGroupsForUser(ctx context.Context, userID int64) ([]domain.Group, error) {
	const query = `SELECT g.id, g.name, g.institution, g.invite_code, g.created_at
FROM research_groups g
JOIN group_memberships m ON m.group_id = g.id
WHERE m.user_id = $1
ORDER BY g.created_at DESC, g.id DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError("list groups", err)
	}
	defer rows.Close()

	groups := make([]domain.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, mapError("scan group", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list groups", err)
	}
	return groups, nil
}

func (r *PostgresGroupRepo) GetMembership(ctx context.Context, userID, groupID int64) (domain.Membership, error) {
	return getMembership(ctx, r.db, userID, groupID)
}

// rowQuerier is satisfied by both the pool and an open transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txMemberships reads memberships on the connection of an open transaction.
type txMemberships struct {
	tx pgx.Tx
}

func (m txMemberships) GetMembership(ctx context.Context, userID, groupID int64) (domain.Membership, error) {
	return getMembership(ctx, m.tx, userID, groupID)
}

func getMembership(ctx context.Context, q rowQuerier, userID, groupID int64) (domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	err := q.QueryRow(ctx,
		`SELECT user_id, group_id, role, created_at FROM group_memberships WHERE user_id = $1 AND group_id = $2`,
		userID, groupID,
	).Scan(&m.UserID, &m.GroupID, &role, &m.CreatedAt)
	if err != nil {
		return domain.Membership{}, mapError("get membership", err)
	}
	m.Role = domain.Role(role)
	return m, nil
}

func (r *PostgresGroupRepo) AddMembership(ctx context.Context, membership domain.Membership) error {
	_, err := r.db.Exec(ctx, `INSERT INTO group_memberships (user_id, group_id, role) VALUES ($1, $2, $3)`,
		membership.UserID, membership.GroupID, string(membership.Role))
	return mapError("add membership", err)
}

func (r *PostgresGroupRepo) RemoveMembership(ctx context.Context, userID, groupID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM group_memberships WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	if err != nil {
		return mapError("remove membership", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove membership: %w", ErrNotFound)
	}
	return nil
}

func (r *PostgresGroupRepo) ListMembers(ctx context.Context, groupID int64) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, group_id, role, created_at FROM group_memberships WHERE group_id = $1 ORDER BY created_at, user_id`,
		groupID)
	if err != nil {
		return nil, mapError("list members", err)
	}
	defer rows.Close()

	members := make([]domain.Membership, 0)
	for rows.Next() {
		var (
			m    domain.Membership
			role string
		)
		if err := rows.Scan(&m.UserID, &m.GroupID, &role, &m.CreatedAt); err != nil {
			return nil, mapError("scan member", err)
		}
		m.Role = domain.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list members", err)
	}
	return members, nil
}

// PostgresKeyRepo implements KeyRepository.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

const keyColumns = `id, kid, secret, algorithm, is_active, created_at`

func scanKey(row pgx.Row) (domain.SigningKey, error) {
	var k domain.SigningKey
	err := row.Scan(&k.ID, &k.KID, &k.Secret, &k.Algorithm, &k.IsActive, &k.CreatedAt)
	return k, err
}

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	k, err := scanKey(r.db.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM signing_keys WHERE is_active ORDER BY created_at DESC LIMIT 1`))
	if err != nil {
		return domain.SigningKey{}, mapError("get active key", err)
	}
	return k, nil
}

// CreateKey inserts an active key. A concurrent insert by another instance wins
// through the partial unique index and surfaces as ErrConflict.
func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	const query = `INSERT INTO signing_keys (id, kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT DO NOTHING
RETURNING ` + keyColumns
	k, err := scanKey(r.db.QueryRow(ctx, query, key.ID, key.KID, key.Secret, key.Algorithm))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SigningKey{}, fmt.Errorf("create key: %w", ErrConflict)
	}
	if err != nil {
		return domain.SigningKey{}, mapError("create key", err)
	}
	return k, nil
}
