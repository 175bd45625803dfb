package application

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/internal/domain/entity"
	"github.com/oksasatya/authcore/internal/domain/identity"
	"github.com/oksasatya/authcore/internal/domain/notification"
	repo "github.com/oksasatya/authcore/internal/domain/repository"
	"github.com/oksasatya/authcore/pkg/helpers"
	"github.com/oksasatya/authcore/pkg/response"
	"github.com/oksasatya/authcore/pkg/validation"
)

const (
	msgInvalidCredentials = "Invalid Credentials"
	msgUserNotFound       = "User not found"
	msgRegistrationFailed = "Error registering user"
	defaultOAuthProvider  = "google"

	defaultSideEffectTimeout = 15 * time.Second
)

// UserIndexer keeps a searchable copy of public user fields.
type UserIndexer interface {
	Index(ctx context.Context, u *entity.User) error
	Search(ctx context.Context, q string, size int) ([]map[string]any, error)
}

// AvatarMirror copies a remote profile picture into our own storage and returns its URL.
type AvatarMirror interface {
	Mirror(ctx context.Context, userID, sourceURL string) (string, error)
}

// AuthService registers users, authenticates them and issues token pairs.
// Verifications, Indexer and Avatars are optional; nil disables them.
// Side effects of a successful write run in the background; Wait drains them.
type AuthService struct {
	Repo       repo.UserRepository
	Hasher     *helpers.PasswordHasher
	JWT        *helpers.JWTManager
	Identity   identity.Provider
	Dispatcher notification.Dispatcher
	Logger     *logrus.Logger

	Verifications repo.VerificationTokenRepository
	Indexer       UserIndexer
	Avatars       AvatarMirror

	// StrictOAuthEmail rejects Google logins whose claimed email differs from the token's.
	StrictOAuthEmail bool

	// SideEffectTimeout bounds each background side effect. Zero means 15s.
	SideEffectTimeout time.Duration

	pending sync.WaitGroup
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type LoginData struct {
	User         entity.PublicUser `json:"user"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
}

// RefreshData carries the new pair plus the configured lifetimes in seconds.
type RefreshData struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresIn  int64  `json:"access_token_expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

func NewAuthService(r repo.UserRepository, hasher *helpers.PasswordHasher, jwt *helpers.JWTManager, idp identity.Provider, dispatcher notification.Dispatcher, logger *logrus.Logger) *AuthService {
	if logger == nil {
		logger = helpers.DiscardLogger()
	}
	return &AuthService{
		Repo:       r,
		Hasher:     hasher,
		JWT:        jwt,
		Identity:   idp,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

// RegisterUser creates a local account and asks for email confirmation. No tokens are issued.
func (s *AuthService) RegisterUser(ctx context.Context, in CreateUserInput) (response.Envelope[any], error) {
	if err := validation.Struct(in); err != nil {
		return response.Envelope[any]{}, validationError(err)
	}
	email := entity.NormalizeEmail(in.Email)

	// Best-effort pre-check; the unique index decides under races.
	existing, err := s.Repo.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return response.Envelope[any]{}, newError(KindConflict, "User already exists", nil)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return response.Envelope[any]{}, storeError(ctx, msgRegistrationFailed, err)
	}

	u := &entity.User{
		Name:     strings.TrimSpace(in.Name),
		Username: strings.TrimSpace(in.Username),
		Email:    email,
		Bio:      in.Bio,
		Provider: entity.ProviderLocal,
	}
	u.SetPassword(in.Password)
	if err := s.hashPendingPassword(u); err != nil {
		return response.Envelope[any]{}, hashError("password", msgRegistrationFailed, err)
	}

	created, err := s.Repo.Insert(ctx, u)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return response.Envelope[any]{}, newError(KindConflict, "User already exists", err)
		}
		return response.Envelope[any]{}, storeError(ctx, msgRegistrationFailed, err)
	}

	// The account exists now; side effects must not undo, fail or delay it.
	snapshot := *created
	s.background(ctx, func(bg context.Context) {
		s.sendConfirmEmail(bg, &snapshot)
		s.index(bg, &snapshot)
	})

	s.Logger.WithField("user_id", created.ID).Info("user registered")
	return response.Success[any](http.StatusCreated, nil, "User created successfully, check your email to confirm your account"), nil
}

// LoginUser checks a local password. Unknown accounts and wrong passwords look the same to the caller.
func (s *AuthService) LoginUser(ctx context.Context, in LoginInput) (response.Envelope[LoginData], error) {
	if err := validation.Struct(in); err != nil {
		return response.Envelope[LoginData]{}, validationError(err)
	}

	u, err := s.Repo.FindByEmailOrUsername(ctx, entity.NormalizeEmail(in.Email), strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return response.Envelope[LoginData]{}, newError(KindNotFound, msgInvalidCredentials, nil)
		}
		return response.Envelope[LoginData]{}, storeError(ctx, "login failed", err)
	}
	if !u.HasPassword() || !s.Hasher.Verify(in.Password, u.PasswordHash) {
		return response.Envelope[LoginData]{}, newError(KindNotFound, msgInvalidCredentials, nil)
	}

	pair, err := s.IssueTokens(u.ID)
	if err != nil {
		return response.Envelope[LoginData]{}, newError(KindInternal, "Error generating tokens", err)
	}
	return response.Success(http.StatusOK, LoginData{
		User:         u.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "success"), nil
}

// LoginGoogleUser trusts the account only after Google accepted the token.
// First login creates the user (201); later logins return the stored one (200).
func (s *AuthService) LoginGoogleUser(ctx context.Context, in GoogleUserInput) (response.Envelope[LoginData], error) {
	if err := validation.Struct(in); err != nil {
		return response.Envelope[LoginData]{}, validationError(err)
	}

	info, err := s.Identity.Introspect(ctx, in.AuthToken)
	if err != nil {
		return response.Envelope[LoginData]{}, s.identityError(ctx, err)
	}

	email := entity.NormalizeEmail(in.Email)
	if s.StrictOAuthEmail && entity.NormalizeEmail(info.Email) != email {
		s.Logger.WithField("claimed", email).Warn("oauth email does not match token owner")
		return response.Envelope[LoginData]{}, newError(KindInvalidOAuthToken, "Invalid OAuth token", nil)
	}

	status := http.StatusOK
	u, err := s.Repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		u, status, err = s.createOAuthUser(ctx, in, email, info)
		if err != nil {
			return response.Envelope[LoginData]{}, err
		}
	case err != nil:
		return response.Envelope[LoginData]{}, storeError(ctx, "login failed", err)
	default:
		s.refreshOAuthUser(ctx, u, in, info)
	}

	pair, err := s.IssueTokens(u.ID)
	if err != nil {
		return response.Envelope[LoginData]{}, newError(KindInternal, "Error generating tokens", err)
	}
	return response.Success(status, LoginData{
		User:         u.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "success"), nil
}

// VerifyEmail marks userID's email as verified.
func (s *AuthService) VerifyEmail(ctx context.Context, userID string) (response.Envelope[bool], error) {
	u, err := s.Repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return response.Envelope[bool]{}, newError(KindNotFound, msgUserNotFound, nil)
		}
		return response.Envelope[bool]{}, storeError(ctx, "error verifying email", err)
	}
	if !u.EmailVerified {
		verified := true
		if err := s.Repo.UpdateFields(ctx, u.ID, repo.UserPatch{EmailVerified: &verified}); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return response.Envelope[bool]{}, newError(KindNotFound, msgUserNotFound, nil)
			}
			return response.Envelope[bool]{}, storeError(ctx, "error verifying email", err)
		}
	}
	return response.Success(http.StatusOK, true, "Email verified"), nil
}

// ConfirmEmail redeems a single-use verification token sent by email.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (response.Envelope[bool], error) {
	if s.Verifications == nil {
		return response.Envelope[bool]{}, newError(KindInternal, "verification unavailable", nil)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return response.Envelope[bool]{}, newError(KindUnauthorized, "invalid or expired token", nil)
	}
	uid, err := s.Verifications.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrVerificationTokenNotFound) {
			return response.Envelope[bool]{}, newError(KindUnauthorized, "invalid or expired token", nil)
		}
		return response.Envelope[bool]{}, storeError(ctx, "error verifying email", err)
	}
	return s.VerifyEmail(ctx, uid)
}

// RefreshToken trades a valid refresh token for a new pair. The user is not re-read.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (response.Envelope[RefreshData], error) {
	claims, err := s.JWT.Verify(refreshToken)
	if err != nil {
		msg := "invalid refresh token"
		if errors.Is(err, helpers.ErrExpiredToken) {
			msg = "refresh token expired"
		}
		return response.Envelope[RefreshData]{}, newError(KindUnauthorized, msg, err)
	}
	if claims.UserID == "" {
		return response.Envelope[RefreshData]{}, newError(KindUnauthorized, "invalid refresh token", nil)
	}

	pair, err := s.IssueTokens(claims.UserID)
	if err != nil {
		return response.Envelope[RefreshData]{}, newError(KindInternal, "Error generating tokens", err)
	}
	return response.Success(http.StatusOK, RefreshData{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresIn:  int64(s.JWT.AccessTTL / time.Second),
		RefreshTokenExpiresIn: int64(s.JWT.RefreshTTL / time.Second),
	}, "success"), nil
}

// EmailExists is a read-only probe for sign-up forms.
func (s *AuthService) EmailExists(ctx context.Context, email string) (response.Envelope[any], error) {
	email = entity.NormalizeEmail(email)
	if email == "" {
		return response.Envelope[any]{}, newError(KindValidation, "email is required", nil)
	}
	_, err := s.Repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return response.Envelope[any]{}, newError(KindConflict, "Email already exists", nil)
	case errors.Is(err, repo.ErrNotFound):
		return response.Success[any](http.StatusOK, nil, ""), nil
	default:
		return response.Envelope[any]{}, storeError(ctx, "lookup failed", err)
	}
}

// UsernameExists is a read-only probe for sign-up forms.
func (s *AuthService) UsernameExists(ctx context.Context, username string) (response.Envelope[any], error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return response.Envelope[any]{}, newError(KindValidation, "username is required", nil)
	}
	_, err := s.Repo.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return response.Envelope[any]{}, newError(KindConflict, "Username already exists", nil)
	case errors.Is(err, repo.ErrNotFound):
		return response.Success[any](http.StatusOK, nil, ""), nil
	default:
		return response.Envelope[any]{}, storeError(ctx, "lookup failed", err)
	}
}

// ChangePassword replaces a local password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (response.Envelope[any], error) {
	if err := validation.Struct(in); err != nil {
		return response.Envelope[any]{}, validationError(err)
	}
	u, err := s.Repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return response.Envelope[any]{}, newError(KindNotFound, msgUserNotFound, nil)
		}
		return response.Envelope[any]{}, storeError(ctx, "password update failed", err)
	}
	if !u.HasPassword() || !s.Hasher.Verify(in.CurrentPassword, u.PasswordHash) {
		return response.Envelope[any]{}, newError(KindUnauthorized, msgInvalidCredentials, nil)
	}

	u.SetPassword(in.NewPassword)
	if err := s.hashPendingPassword(u); err != nil {
		return response.Envelope[any]{}, hashError("new_password", "password update failed", err)
	}
	if err := s.Repo.UpdateFields(ctx, u.ID, repo.UserPatch{PasswordHash: &u.PasswordHash}); err != nil {
		return response.Envelope[any]{}, storeError(ctx, "password update failed", err)
	}
	s.Logger.WithField("user_id", u.ID).Info("password changed")
	return response.Success[any](http.StatusOK, nil, "password updated"), nil
}

// SearchUsers queries the user index; without an index it returns nothing.
func (s *AuthService) SearchUsers(ctx context.Context, q string, size int) (response.Envelope[[]map[string]any], error) {
	if s.Indexer == nil || strings.TrimSpace(q) == "" {
		return response.Success(http.StatusOK, []map[string]any{}, ""), nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	hits, err := s.Indexer.Search(ctx, q, size)
	if err != nil {
		return response.Envelope[[]map[string]any]{}, storeError(ctx, "search failed", err)
	}
	return response.Success(http.StatusOK, hits, ""), nil
}

// IssueTokens signs an access/refresh pair for userID.
func (s *AuthService) IssueTokens(userID string) (TokenPair, error) {
	access, aexp, err := s.JWT.IssueAccess(userID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Error("generate access token failed")
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.IssueRefresh(userID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Error("generate refresh token failed")
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// hashPendingPassword hashes only a newly set password, never an existing hash.
func (s *AuthService) hashPendingPassword(u *entity.User) error {
	plain, ok := u.PendingPassword()
	if !ok {
		return nil
	}
	hash, err := s.Hasher.Hash(plain)
	if err != nil {
		return err
	}
	u.ApplyPasswordHash(hash)
	return nil
}

// hashError keeps an over-long password a caller error instead of an internal one.
func hashError(field, msg string, err error) *Error {
	if errors.Is(err, helpers.ErrPasswordTooLong) || errors.Is(err, helpers.ErrEmptyPassword) {
		e := newError(KindValidation, "invalid payload", err)
		e.details = map[string]string{field: "must be at least 6 characters and at most 72 bytes long"}
		return e
	}
	return newError(KindInternal, msg, err)
}

// background runs fn on a context detached from the request and bounded by SideEffectTimeout.
func (s *AuthService) background(ctx context.Context, fn func(context.Context)) {
	timeout := s.SideEffectTimeout
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		fn(bg)
	}()
}

// Wait blocks until every background side effect started so far has finished.
func (s *AuthService) Wait() {
	s.pending.Wait()
}

func (s *AuthService) identityError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, identity.ErrInvalidToken):
		return newError(KindInvalidOAuthToken, "Invalid OAuth token", err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return newError(KindCanceled, "request canceled", err)
	default:
		s.Logger.WithError(err).Warn("identity provider call failed")
		return newError(KindUpstreamUnavailable, "identity provider unavailable", err)
	}
}

func (s *AuthService) createOAuthUser(ctx context.Context, in GoogleUserInput, email string, info identity.Identity) (*entity.User, int, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = defaultOAuthProvider
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u := &entity.User{
		Name:           name,
		Email:          email,
		ProfilePicture: in.PhotoURL,
		Provider:       provider,
		EmailVerified:  info.EmailVerified,
	}

	created, err := s.Repo.Insert(ctx, u)
	if err != nil {
		// A concurrent first login won the insert; use its record.
		if errors.Is(err, repo.ErrDuplicate) {
			existing, ferr := s.Repo.FindByEmail(ctx, email)
			if ferr == nil {
				return existing, http.StatusOK, nil
			}
		}
		s.Logger.WithError(err).Error("oauth user insert failed")
		return nil, 0, storeError(ctx, msgRegistrationFailed, err)
	}

	snapshot := *created
	s.background(ctx, func(bg context.Context) {
		s.mirrorAvatar(bg, &snapshot)
		s.index(bg, &snapshot)
	})
	s.Logger.WithFields(logrus.Fields{"user_id": created.ID, "provider": provider}).Info("oauth user created")
	return created, http.StatusCreated, nil
}

// refreshOAuthUser applies what a re-login can teach us; the record is never re-created.
func (s *AuthService) refreshOAuthUser(ctx context.Context, u *entity.User, in GoogleUserInput, info identity.Identity) {
	var patch repo.UserPatch
	if info.EmailVerified && !u.EmailVerified {
		verified := true
		patch.EmailVerified = &verified
	}
	if u.ProfilePicture == "" && in.PhotoURL != "" {
		pic := in.PhotoURL
		patch.ProfilePicture = &pic
	}
	if patch.IsEmpty() {
		return
	}
	if err := s.Repo.UpdateFields(ctx, u.ID, patch); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("oauth profile refresh failed")
		return
	}
	if patch.EmailVerified != nil {
		u.EmailVerified = true
	}
	if patch.ProfilePicture != nil {
		u.ProfilePicture = *patch.ProfilePicture
	}
}

func (s *AuthService) sendConfirmEmail(ctx context.Context, u *entity.User) {
	if s.Dispatcher == nil || s.Verifications == nil {
		return
	}
	// no token means no working link, so no mail
	tok, err := s.Verifications.Issue(ctx, u.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("verification token issue failed; confirm email skipped")
		return
	}
	evt := notification.ConfirmEmail{Email: u.Email, UserID: u.ID, Name: u.Name, Token: tok}
	if err := s.Dispatcher.Emit(ctx, notification.TopicConfirmEmail, evt); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("confirm email dispatch failed")
	}
}

func (s *AuthService) index(ctx context.Context, u *entity.User) {
	if s.Indexer == nil {
		return
	}
	if err := s.Indexer.Index(ctx, u); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("user index failed")
	}
}

func (s *AuthService) mirrorAvatar(ctx context.Context, u *entity.User) {
	if s.Avatars == nil || u.ProfilePicture == "" {
		return
	}
	url, err := s.Avatars.Mirror(ctx, u.ID, u.ProfilePicture)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("avatar mirror failed")
		return
	}
	if err := s.Repo.UpdateFields(ctx, u.ID, repo.UserPatch{ProfilePicture: &url}); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("avatar url update failed")
		return
	}
	u.ProfilePicture = url
}
