package entity

import (
	"strings"
	"time"
)

const ProviderLocal = "local"

// User is the aggregate root for user domain
// Passwords are stored as bcrypt hashes in PasswordHash and never serialized.
//
// Email is unique case-insensitively; it is kept normalized via NormalizeEmail.
type User struct {
	ID             string
	Name           string
	Username       string
	Email          string
	Bio            string
	PasswordHash   string
	EmailVerified  bool
	Verified       bool
	ProfilePicture string
	Provider       string
	FollowersCount int
	FollowingCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	plainPassword string
}

// SetPassword marks plain as the pending password. It is hashed before persisting.
func (u *User) SetPassword(plain string) {
	u.plainPassword = plain
}

// PendingPassword returns the plain password set since the last hash, if any.
func (u *User) PendingPassword() (string, bool) {
	return u.plainPassword, u.plainPassword != ""
}

// ApplyPasswordHash stores hash and clears the pending plain password.
func (u *User) ApplyPasswordHash(hash string) {
	u.PasswordHash = hash
	u.plainPassword = ""
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PublicUser is what leaves the service; it has no credential material.
type PublicUser struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Username       string    `json:"username,omitempty"`
	Email          string    `json:"email"`
	Bio            string    `json:"bio,omitempty"`
	EmailVerified  bool      `json:"emailVerified"`
	Verified       bool      `json:"verified"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	FollowersCount int       `json:"followersCount"`
	FollowingCount int       `json:"followingCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Name:           u.Name,
		Username:       u.Username,
		Email:          u.Email,
		Bio:            u.Bio,
		EmailVerified:  u.EmailVerified,
		Verified:       u.Verified,
		ProfilePicture: u.ProfilePicture,
		Provider:       u.Provider,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
