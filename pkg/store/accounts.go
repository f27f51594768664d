package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Account is a registered user.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

// Code is a one-time verification or reset code, stored hashed.
type Code struct {
	Email     string
	Purpose   string
	Hash      string
	ExpiresAt time.Time
}

const accountColumns = `id, email, name, password_hash, verified, created_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Verified, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a. A taken email yields ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Verified, a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// AccountByEmail looks an account up by its normalized email.
func (s *Store) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account by email: %w", err)
	}
	return a, err
}

// AccountByID looks an account up by id.
func (s *Store) AccountByID(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account by id: %w", err)
	}
	return a, err
}

// MarkVerified flags the account's email as verified.
func (s *Store) MarkVerified(ctx context.Context, id string) error {
	return s.execOne(ctx, "mark verified", `UPDATE accounts SET verified = TRUE WHERE id = $1`, id)
}

// SetPassword replaces the account's password hash.
func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, "set password", `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
}

// PutCode stores c, replacing any outstanding code for the same email and purpose.
func (s *Store) PutCode(ctx context.Context, c Code) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_codes (email, purpose, code_hash, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email, purpose) DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at`,
		c.Email, c.Purpose, c.Hash, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("put code: %w", err)
	}
	return nil
}

// GetCode returns the outstanding code for email and purpose.
func (s *Store) GetCode(ctx context.Context, email, purpose string) (*Code, error) {
	c := Code{Email: email, Purpose: purpose}
	err := s.pool.QueryRow(ctx, `SELECT code_hash, expires_at FROM auth_codes WHERE email = $1 AND purpose = $2`, email, purpose).
		Scan(&c.Hash, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	return &c, nil
}

// DeleteCode removes the code for email and purpose.
func (s *Store) DeleteCode(ctx context.Context, email, purpose string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_codes WHERE email = $1 AND purpose = $2`, email, purpose); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// CreateSession stores a hashed session token.
func (s *Store) CreateSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO sessions (token_hash, account_id, expires_at) VALUES ($1, $2, $3)`,
		tokenHash, accountID, expiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SessionAccount returns the account id owning an unexpired session.
func (s *Store) SessionAccount(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT account_id FROM sessions WHERE token_hash = $1 AND expires_at > $2`, tokenHash, now).
		Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session account: %w", err)
	}
	return id, nil
}

// DeleteSession revokes a session. Unknown tokens are ignored.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteSessions revokes every session of an account.
func (s *Store) DeleteSessions(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
