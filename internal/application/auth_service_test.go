package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/authcore/internal/domain/entity"
	"github.com/oksasatya/authcore/internal/domain/identity"
	"github.com/oksasatya/authcore/internal/domain/notification"
	repo "github.com/oksasatya/authcore/internal/domain/repository"
	"github.com/oksasatya/authcore/pkg/helpers"
)

type memRepo struct {
	mu      sync.Mutex
	users   map[string]*entity.User
	seq     int
	inserts int

	// findHook runs before FindByEmail reads; tests use it to line up concurrent callers.
	findHook func()
	failWith error
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*entity.User{}}
}

func (r *memRepo) copyOf(u *entity.User) *entity.User {
	c := *u
	return &c
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	if r.findHook != nil {
		r.findHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if u.Email == email {
			return r.copyOf(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if username != "" && u.Username == username {
			return r.copyOf(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) FindByEmailOrUsername(_ context.Context, email, username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if (email != "" && u.Email == email) || (username != "" && u.Username == username) {
			return r.copyOf(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) FindByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return r.copyOf(u), nil
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) Insert(_ context.Context, u *entity.User) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email || (u.Username != "" && existing.Username == u.Username) {
			return nil, repo.ErrDuplicate
		}
	}
	r.seq++
	r.inserts++
	c := r.copyOf(u)
	c.ID = fmt.Sprintf("user-%d", r.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.users[c.ID] = c
	return r.copyOf(c), nil
}

func (r *memRepo) UpdateFields(_ context.Context, id string, p repo.UserPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.ProfilePicture != nil {
		u.ProfilePicture = *p.ProfilePicture
	}
	return nil
}

type stubIdentity struct {
	id    identity.Identity
	err   error
	calls int
}

func (s *stubIdentity) Introspect(_ context.Context, _ string) (identity.Identity, error) {
	s.calls++
	return s.id, s.err
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (d *recordingDispatcher) Emit(_ context.Context, _ string, payload any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, payload)
	return nil
}

// blockingDispatcher holds every Emit until release is closed.
type blockingDispatcher struct {
	recordingDispatcher
	release chan struct{}
}

func (d *blockingDispatcher) Emit(ctx context.Context, topic string, payload any) error {
	<-d.release
	return d.recordingDispatcher.Emit(ctx, topic, payload)
}

type memVerifications struct {
	mu       sync.Mutex
	tokens   map[string]string
	seq      int
	issueErr error
}

func (v *memVerifications) Issue(_ context.Context, userID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.issueErr != nil {
		return "", v.issueErr
	}
	v.seq++
	tok := fmt.Sprintf("tok-%d", v.seq)
	v.tokens[tok] = userID
	return tok, nil
}

func (v *memVerifications) Consume(_ context.Context, token string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	uid, ok := v.tokens[token]
	if !ok {
		return "", repo.ErrVerificationTokenNotFound
	}
	delete(v.tokens, token)
	return uid, nil
}

type fixture struct {
	svc   *AuthService
	repo  *memRepo
	idp   *stubIdentity
	disp  *recordingDispatcher
	verif *memVerifications
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newMemRepo(),
		idp:   &stubIdentity{id: identity.Identity{Email: "g@x.com", EmailVerified: true}},
		disp:  &recordingDispatcher{},
		verif: &memVerifications{tokens: map[string]string{}},
	}
	f.svc = NewAuthService(
		f.repo,
		helpers.NewPasswordHasher(bcrypt.MinCost),
		helpers.NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour),
		f.idp,
		f.disp,
		nil,
	)
	f.svc.Verifications = f.verif
	return f
}

func alice() CreateUserInput {
	return CreateUserInput{Name: "Alice", Username: "alice", Email: "Alice@X.com", Password: "secret1"}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, env.Status)
	assert.Contains(t, env.Message, "check your email")

	stored, err := f.repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))
	assert.Equal(t, entity.ProviderLocal, stored.Provider)

	_, err = f.svc.RegisterUser(ctx, alice())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	login, err := f.svc.LoginUser(ctx, LoginInput{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, login.Status)
	assert.NotEmpty(t, login.Data.AccessToken)
	assert.NotEmpty(t, login.Data.RefreshToken)
	assert.Equal(t, stored.ID, login.Data.User.ID)

	raw, err := json.Marshal(login)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "$2")
	assert.NotContains(t, strings.ToLower(string(raw)), "password")
}

func TestLoginByUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)

	env, err := f.svc.LoginUser(ctx, LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", env.Data.User.Email)
}

func TestRegisterConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)

	var arrived sync.WaitGroup
	arrived.Add(2)
	f.repo.findHook = func() {
		arrived.Done()
		arrived.Wait()
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RegisterUser(context.Background(), alice())
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.repo.inserts)
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)

	_, wrongPwd := f.svc.LoginUser(ctx, LoginInput{Email: "alice@x.com", Password: "nope12"})
	_, unknown := f.svc.LoginUser(ctx, LoginInput{Email: "bob@x.com", Password: "nope12"})
	require.Error(t, wrongPwd)
	require.Error(t, unknown)

	var a, b *Error
	require.ErrorAs(t, wrongPwd, &a)
	require.ErrorAs(t, unknown, &b)
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.PublicMessage(), b.PublicMessage())
	assert.Equal(t, "Invalid Credentials", a.PublicMessage())
}

func TestLoginWithoutLocalPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.LoginGoogleUser(ctx, GoogleUserInput{AuthToken: "t", Email: "g@x.com"})
	require.NoError(t, err)

	_, err = f.svc.LoginUser(ctx, LoginInput{Email: "g@x.com", Password: "anything"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterUser(context.Background(), CreateUserInput{Name: "A", Email: "bad", Password: "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Details(), "email")
	assert.Contains(t, e.Details(), "password")
	assert.Zero(t, f.repo.inserts)
}

func TestRegisterDispatchFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.disp.err = errors.New("broker down")

	env, err := f.svc.RegisterUser(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, env.Status)
	assert.Equal(t, 1, f.repo.inserts)
}

func TestRegisterEmitsConfirmEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterUser(context.Background(), alice())
	require.NoError(t, err)
	f.svc.Wait()
	require.Len(t, f.disp.events, 1)

	evt, ok := f.disp.events[0].(notification.ConfirmEmail)
	require.True(t, ok)
	assert.Equal(t, "alice@x.com", evt.Email)
	assert.NotEmpty(t, evt.Token)
}

func TestRegisterDoesNotWaitForDispatch(t *testing.T) {
	f := newFixture(t)
	slow := &blockingDispatcher{release: make(chan struct{})}
	f.svc.Dispatcher = slow

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RegisterUser(context.Background(), alice())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(slow.release)
		t.Fatal("RegisterUser blocked on the dispatcher")
	}
	assert.Equal(t, 1, f.repo.inserts)

	close(slow.release)
	f.svc.Wait()
	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.Len(t, slow.events, 1)
}

func TestRegisterSkipsConfirmEmailWithoutToken(t *testing.T) {
	f := newFixture(t)
	f.verif.issueErr = errors.New("redis down")

	env, err := f.svc.RegisterUser(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, env.Status)
	f.svc.Wait()
	assert.Empty(t, f.disp.events)
}

func TestPasswordByteLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("密", 30) // 30 characters, 90 bytes

	in := alice()
	in.Password = long
	_, err := f.svc.RegisterUser(ctx, in)
	require.ErrorIs(t, err, ErrValidation)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusBadRequest, e.Status())
	assert.Contains(t, e.Details(), "password")
	assert.Zero(t, f.repo.inserts)

	in.Password = strings.Repeat("密", 24) // 72 bytes
	_, err = f.svc.RegisterUser(ctx, in)
	require.NoError(t, err)
	u, err := f.repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: in.Password, NewPassword: long})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHashErrorMapsTooLongToValidation(t *testing.T) {
	e := hashError("password", "boom", helpers.ErrPasswordTooLong)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Contains(t, e.Details(), "password")

	e = hashError("password", "boom", errors.New("bcrypt broke"))
	assert.Equal(t, KindInternal, e.Kind)
}

func TestConfirmEmailTokenIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)
	f.svc.Wait()
	tok := f.disp.events[0].(notification.ConfirmEmail).Token

	env, err := f.svc.ConfirmEmail(ctx, tok)
	require.NoError(t, err)
	assert.True(t, env.Data)

	u, err := f.repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)

	_, err = f.svc.ConfirmEmail(ctx, tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)
	u, _ := f.repo.FindByEmail(ctx, "alice@x.com")

	env, err := f.svc.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Email verified", env.Message)

	// idempotent
	_, err = f.svc.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginGoogleUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := GoogleUserInput{AuthToken: "good", Email: "G@x.com", Name: "Gee", Provider: "GOOGLE"}

	first, err := f.svc.LoginGoogleUser(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, first.Status)
	assert.Equal(t, "google", first.Data.User.Provider)
	assert.True(t, first.Data.User.EmailVerified)
	assert.NotEmpty(t, first.Data.AccessToken)

	again, err := f.svc.LoginGoogleUser(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, again.Status)
	assert.Equal(t, first.Data.User.ID, again.Data.User.ID)
	assert.Equal(t, 1, f.repo.inserts)
}

func TestLoginGoogleUserRejectedToken(t *testing.T) {
	f := newFixture(t)
	f.idp.err = identity.ErrInvalidToken

	_, err := f.svc.LoginGoogleUser(context.Background(), GoogleUserInput{AuthToken: "bad", Email: "g@x.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOAuthToken)
	assert.Zero(t, f.repo.inserts)
}

func TestLoginGoogleUserProviderDown(t *testing.T) {
	f := newFixture(t)
	f.idp.err = fmt.Errorf("%w: 502", identity.ErrUnavailable)

	_, err := f.svc.LoginGoogleUser(context.Background(), GoogleUserInput{AuthToken: "t", Email: "g@x.com"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status())
}

func TestLoginGoogleUserStrictEmail(t *testing.T) {
	f := newFixture(t)
	f.svc.StrictOAuthEmail = true

	_, err := f.svc.LoginGoogleUser(context.Background(), GoogleUserInput{AuthToken: "t", Email: "victim@x.com"})
	assert.ErrorIs(t, err, ErrInvalidOAuthToken)
	assert.Zero(t, f.repo.inserts)

	_, err = f.svc.LoginGoogleUser(context.Background(), GoogleUserInput{AuthToken: "t", Email: "g@x.com"})
	assert.NoError(t, err)
}

func TestGoogleReloginLeavesPasswordAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, CreateUserInput{Name: "G", Email: "g@x.com", Password: "secret1"})
	require.NoError(t, err)
	before, _ := f.repo.FindByEmail(ctx, "g@x.com")

	env, err := f.svc.LoginGoogleUser(ctx, GoogleUserInput{AuthToken: "t", Email: "g@x.com", PhotoURL: "https://img.example/p.png"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.Status)

	after, _ := f.repo.FindByEmail(ctx, "g@x.com")
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.True(t, after.EmailVerified)
	assert.Equal(t, "https://img.example/p.png", after.ProfilePicture)

	_, err = f.svc.LoginUser(ctx, LoginInput{Email: "g@x.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)
	login, err := f.svc.LoginUser(ctx, LoginInput{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	env, err := f.svc.RefreshToken(ctx, login.Data.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), env.Data.AccessTokenExpiresIn)
	assert.Equal(t, int64(7*24*3600), env.Data.RefreshTokenExpiresIn)

	claims, err := f.svc.JWT.Verify(env.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.Data.User.ID, claims.UserID)

	_, err = f.svc.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshTokenExpired(t *testing.T) {
	f := newFixture(t)
	tok, _, err := f.svc.JWT.Issue("user-1", 0)
	require.NoError(t, err)

	_, err = f.svc.RefreshToken(context.Background(), tok)
	require.ErrorIs(t, err, ErrUnauthorized)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "refresh token expired", e.PublicMessage())
}

func TestExistenceProbes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)

	_, err = f.svc.EmailExists(ctx, "ALICE@x.com")
	assert.ErrorIs(t, err, ErrConflict)
	env, err := f.svc.EmailExists(ctx, "free@x.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.Status)

	_, err = f.svc.UsernameExists(ctx, "alice")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.UsernameExists(ctx, "bob")
	assert.NoError(t, err)

	_, err = f.svc.UsernameExists(ctx, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, alice())
	require.NoError(t, err)
	u, _ := f.repo.FindByEmail(ctx, "alice@x.com")

	_, err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "wrong1", NewPassword: "newpass1"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "newpass1"})
	require.NoError(t, err)

	_, err = f.svc.LoginUser(ctx, LoginInput{Email: "alice@x.com", Password: "newpass1"})
	assert.NoError(t, err)
	_, err = f.svc.LoginUser(ctx, LoginInput{Email: "alice@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.repo.failWith = errors.New("connection reset")

	_, err := f.svc.RegisterUser(context.Background(), alice())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.NotContains(t, e.PublicMessage(), "connection reset")
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.repo.failWith = context.Canceled

	_, err := f.svc.RegisterUser(ctx, alice())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestSearchUsersWithoutIndex(t *testing.T) {
	f := newFixture(t)
	env, err := f.svc.SearchUsers(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, env.Data)
}
