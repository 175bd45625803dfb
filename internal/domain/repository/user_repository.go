package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/authcore/internal/domain/entity"
)

var (
	// ErrNotFound is returned instead of a nil user when no record matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned by Insert when a unique field already exists.
	ErrDuplicate = errors.New("user already exists")
)

// UserPatch lists the fields UpdateFields may change; nil fields are left untouched.
type UserPatch struct {
	EmailVerified  *bool
	PasswordHash   *string
	ProfilePicture *string
}

func (p UserPatch) IsEmpty() bool {
	return p.EmailVerified == nil && p.PasswordHash == nil && p.ProfilePicture == nil
}

// UserRepository is the user directory the auth service reads and writes.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	Insert(ctx context.Context, u *entity.User) (*entity.User, error)
	UpdateFields(ctx context.Context, id string, patch UserPatch) error
}
