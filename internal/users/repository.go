package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique constraint names from the accounts migration.
const (
	constraintUsername = "accounts_username_key"
	constraintEmail    = "accounts_email_key"
)

const selectAccount = `
	SELECT a.id, a.username, a.email, a.password_hash, a.first_name, a.last_name, a.created_at,
	       p.profile_pic, p.hero_badge, p.age, p.city, p.country,
	       p.followers, p.likes, p.posts, p.is_verified, p.created_at, p.modified_at
	FROM accounts a
	JOIN profiles p ON p.account_id = a.id`

// PostgresStore is the PostgreSQL Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) ExistsUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists username: %w", err)
	}
	return exists, nil
}

func (r *PostgresStore) ExistsEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists email: %w", err)
	}
	return exists, nil
}

func (r *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scanOne(ctx, selectAccount+` WHERE a.username = $1`, username)
}

func (r *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	rows, err := r.db.Query(ctx,
		selectAccount+` ORDER BY p.created_at ASC, a.username ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresStore) SetVerified(ctx context.Context, username string) (*Account, error) {
	_, err := r.db.Exec(ctx, `
		UPDATE profiles p SET is_verified = true, modified_at = $2
		FROM accounts a
		WHERE p.account_id = a.id AND a.username = $1 AND NOT p.is_verified`,
		username, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("set verified: %w", err)
	}
	// No row is updated for an unknown or already verified user; the
	// lookup tells them apart.
	return r.GetByUsername(ctx, username)
}

func (r *PostgresStore) Delete(ctx context.Context, username string) (*Account, error) {
	a, err := r.scanOne(ctx, `
		WITH deleted AS (DELETE FROM accounts WHERE username = $1 RETURNING *)
		SELECT a.id, a.username, a.email, a.password_hash, a.first_name, a.last_name, a.created_at,
		       p.profile_pic, p.hero_badge, p.age, p.city, p.country,
		       p.followers, p.likes, p.posts, p.is_verified, p.created_at, p.modified_at
		FROM deleted a
		JOIN profiles p ON p.account_id = a.id`, username)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresStore) scanOne(ctx context.Context, q string, args ...any) (*Account, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return a, rows.Err()
}

func scanAccount(rows pgx.Rows) (*Account, error) {
	var (
		a             Account
		city, country *string
	)
	if err := rows.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.CreatedAt,
		&a.Profile.ProfilePic, &a.Profile.HeroBadge, &a.Profile.Age, &city, &country,
		&a.Profile.Followers, &a.Profile.Likes, &a.Profile.Posts, &a.Profile.IsVerified,
		&a.Profile.CreatedAt, &a.Profile.ModifiedAt,
	); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Profile.AccountID = a.ID
	if city != nil {
		a.Profile.City = *city
	}
	if country != nil {
		a.Profile.Country = *country
	}
	return &a, nil
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case constraintEmail:
				return &ConflictError{Fields: []string{"email"}}
			default:
				return &ConflictError{Fields: []string{"username"}}
			}
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (t *pgTx) CreateProfile(ctx context.Context, accountID uuid.UUID, p *Profile) error {
	now := time.Now().UTC()
	p.AccountID = accountID
	p.CreatedAt = now
	p.ModifiedAt = now

	_, err := t.tx.Exec(ctx, `
		INSERT INTO profiles (account_id, profile_pic, hero_badge, age, city, country,
		                      followers, likes, posts, is_verified, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.AccountID, p.ProfilePic, p.HeroBadge, p.Age, nullable(p.City), nullable(p.Country),
		p.Followers, p.Likes, p.Posts, p.IsVerified, p.CreatedAt, p.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
