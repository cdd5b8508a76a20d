package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

// AccountRepository defines persistence access for patient, doctor and admin logins.
// Each role lives in its own table, so ids are unique per role only. Emails are unique
// across all roles.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, role domain.Role, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error)
	UpdatePassword(ctx context.Context, role domain.Role, id int64, passwordHash string) error
	SubjectExists(ctx context.Context, id domain.Identity) (bool, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

func tableFor(role domain.Role) (string, error) {
	switch role {
	case domain.RolePatient:
		return "patients", nil
	case domain.RoleDoctor:
		return "doctors", nil
	case domain.RoleAdmin:
		return "admins", nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	table, err := tableFor(account.Role)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO ` + table + ` (name, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	// account_emails claims the address across every role table in the same transaction.
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO account_emails (email, role) VALUES ($1, $2)`,
			account.Email, string(account.Role),
		); err != nil {
			return err
		}
		return tx.QueryRow(ctx, query,
			account.Name,
			account.Email,
			account.PasswordHash,
		).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	})
	return translate(err)
}

func (r *accountRepository) GetByID(ctx context.Context, role domain.Role, id int64) (*domain.Account, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	query := `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM ` + table + ` WHERE id=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, id), role)
}

func (r *accountRepository) GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	query := `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM ` + table + ` WHERE email=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, email), role)
}

func (r *accountRepository) UpdatePassword(ctx context.Context, role domain.Role, id int64, passwordHash string) error {
	table, err := tableFor(role)
	if err != nil {
		return err
	}
	query := `
        UPDATE ` + table + ` SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) SubjectExists(ctx context.Context, id domain.Identity) (bool, error) {
	table, err := tableFor(id.Role)
	if err != nil {
		return false, nil
	}
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id=$1)`
	if err := r.pool.QueryRow(ctx, query, id.SubjectID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanAccount(row pgx.Row, role domain.Role) (*domain.Account, error) {
	account := domain.Account{Role: role}
	if err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
