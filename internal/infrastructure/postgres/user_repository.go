package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/authcore/internal/domain/entity"
	"github.com/oksasatya/authcore/internal/domain/repository"
)

// DBTX is the subset of *pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id::text, name, COALESCE(username, ''), email, bio, COALESCE(password_hash, ''),
	email_verified, verified, COALESCE(profile_picture, ''), provider,
	followers_count, following_count, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Bio, &u.PasswordHash,
		&u.EmailVerified, &u.Verified, &u.ProfilePicture, &u.Provider,
		&u.FollowersCount, &u.FollowingCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, err
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1
	`, username))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return u, err
}

// FindByEmailOrUsername matches either identifier; empty ones are ignored.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error) {
	if email == "" && username == "" {
		return nil, repository.ErrNotFound
	}
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 <> '' AND lower(email) = lower($1))
		   OR ($2 <> '' AND username = $2)
		ORDER BY created_at
		LIMIT 1
	`, email, username))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by email or username: %w", err)
	}
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, err
}

// Insert stores u and returns the stored record. Unique violations become repository.ErrDuplicate.
func (r *UserRepository) Insert(ctx context.Context, u *entity.User) (*entity.User, error) {
	created, err := scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (name, username, email, bio, password_hash, email_verified, profile_picture, provider)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8)
		RETURNING `+userColumns,
		u.Name, u.Username, u.Email, u.Bio, u.PasswordHash, u.EmailVerified, u.ProfilePicture, u.Provider))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// UpdateFields sets only the non-nil fields of patch.
func (r *UserRepository) UpdateFields(ctx context.Context, id string, patch repository.UserPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return repository.ErrNotFound
	}
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET email_verified = COALESCE($2, email_verified),
		    password_hash = COALESCE($3, password_hash),
		    profile_picture = COALESCE($4, profile_picture),
		    updated_at = now()
		WHERE id = $1
	`, id, patch.EmailVerified, patch.PasswordHash, patch.ProfilePicture)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
