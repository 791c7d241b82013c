package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// AccountRepository handles account state persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert inserts an account or replaces its profile fields.
// Accounts are owned by the identity subsystem; this exists for seeding and tests.
func (r *AccountRepository) Upsert(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO accounts (id, email, display_name, roles, last_comment_at, frozen_until, is_blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			roles = EXCLUDED.roles,
			last_comment_at = EXCLUDED.last_comment_at,
			frozen_until = EXCLUDED.frozen_until,
			is_blocked = EXCLUDED.is_blocked
	`

	_, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.Email,
		account.DisplayName,
		rolesToStrings(account.Roles),
		account.LastCommentAt,
		account.FrozenUntil,
		account.IsBlocked,
		account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, email, display_name, roles, last_comment_at, frozen_until, is_blocked, created_at
		FROM accounts
		WHERE id = $1
	`

	var account models.Account
	var roles []string

	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&roles,
		&account.LastCommentAt,
		&account.FrozenUntil,
		&account.IsBlocked,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Roles = stringsToRoles(roles)
	return &account, nil
}

// UpdateLastCommentAt records the instant of the account's last admitted comment
func (r *AccountRepository) UpdateLastCommentAt(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE accounts SET last_comment_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last comment time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// FreezeNonPrivileged sets frozen_until on the listed accounts that hold neither the
// editor nor the admin role, returning the ids that were frozen
func (r *AccountRepository) FreezeNonPrivileged(ctx context.Context, ids []string, until time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		UPDATE accounts
		SET frozen_until = $2
		WHERE id = ANY($1)
		  AND NOT (roles && $3::text[])
		RETURNING id
	`

	privileged := []string{string(types.RoleEditor), string(types.RoleAdmin)}
	rows, err := r.db.Pool().Query(ctx, query, ids, until, privileged)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze accounts: %w", err)
	}

	frozen, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read frozen accounts: %w", err)
	}
	return frozen, nil
}

func rolesToStrings(roles []types.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// stringsToRoles drops role names this service does not know
func stringsToRoles(names []string) []types.Role {
	out := make([]types.Role, 0, len(names))
	for _, n := range names {
		if r, ok := types.ParseRole(n); ok {
			out = append(out, r)
		}
	}
	return out
}
