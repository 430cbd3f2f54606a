package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/auth"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/otp"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/token"
)

const (
	accessSecret  = "test-access-secret"
	refreshSecret = "test-refresh-secret"
	goodPassword  = "Str0ng!Pass"
	uaDesktop     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var rc = auth.RequestContext{IP: "203.0.113.9", UserAgent: uaDesktop}

// ----- fakes -----

// fakeUserStore is an in-memory UserStore honoring the same contract
// as the MySQL repository, including the conditional one-time-code
// consumption semantics.
type fakeUserStore struct {
	accounts map[uint64]*model.Account
	byEmail  map[string]uint64
	nextID   uint64

	consumeVerificationHook func() (bool, error)
	consumeResetHook        func() (bool, error)
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{accounts: map[uint64]*model.Account{}, byEmail: map[string]uint64{}}
}

func norm(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func clone(a *model.Account) *model.Account {
	c := *a
	if a.VerificationCode != nil {
		v := *a.VerificationCode
		c.VerificationCode = &v
	}
	if a.CodeExpiry != nil {
		v := *a.CodeExpiry
		c.CodeExpiry = &v
	}
	if a.ResetPasswordCode != nil {
		v := *a.ResetPasswordCode
		c.ResetPasswordCode = &v
	}
	if a.ResetPasswordExpiry != nil {
		v := *a.ResetPasswordExpiry
		c.ResetPasswordExpiry = &v
	}
	if a.TOTPSecret != nil {
		v := *a.TOTPSecret
		c.TOTPSecret = &v
	}
	return &c
}

func (f *fakeUserStore) Create(_ context.Context, a *model.Account) (uint64, error) {
	email := norm(a.Email)
	if _, exists := f.byEmail[email]; exists {
		return 0, repository.ErrEmailExists
	}
	f.nextID++
	stored := clone(a)
	stored.ID = f.nextID
	stored.Email = email
	f.accounts[stored.ID] = stored
	f.byEmail[email] = stored.ID
	return stored.ID, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	id, ok := f.byEmail[norm(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(f.accounts[id]), nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(a), nil
}

func (f *fakeUserStore) SetVerificationCode(_ context.Context, id uint64, code string, expiry time.Time) error {
	a := f.accounts[id]
	a.VerificationCode = &code
	a.CodeExpiry = &expiry
	return nil
}

func (f *fakeUserStore) ConsumeVerificationCode(_ context.Context, id uint64, code string, now time.Time) (bool, error) {
	if f.consumeVerificationHook != nil {
		return f.consumeVerificationHook()
	}
	a := f.accounts[id]
	if a == nil || a.IsVerified || a.VerificationCode == nil || *a.VerificationCode != code || !a.CodeExpiry.After(now) {
		return false, nil
	}
	a.IsVerified = true
	a.VerificationCode = nil
	a.CodeExpiry = nil
	return true, nil
}

func (f *fakeUserStore) SetResetCode(_ context.Context, id uint64, code string, expiry time.Time) error {
	a := f.accounts[id]
	a.ResetPasswordCode = &code
	a.ResetPasswordExpiry = &expiry
	return nil
}

func (f *fakeUserStore) ConsumeResetCode(_ context.Context, id uint64, code, newHash string, now time.Time) (bool, error) {
	if f.consumeResetHook != nil {
		return f.consumeResetHook()
	}
	a := f.accounts[id]
	if a == nil || a.ResetPasswordCode == nil || *a.ResetPasswordCode != code || !a.ResetPasswordExpiry.After(now) {
		return false, nil
	}
	a.PasswordHash = newHash
	a.ResetPasswordCode = nil
	a.ResetPasswordExpiry = nil
	return true, nil
}

func (f *fakeUserStore) SetPendingTOTPSecret(_ context.Context, id uint64, secret string) error {
	a := f.accounts[id]
	a.TOTPSecret = &secret
	a.TOTPEnabled = false
	return nil
}

func (f *fakeUserStore) EnableTOTP(_ context.Context, id uint64) (bool, error) {
	a := f.accounts[id]
	if a == nil || a.TOTPSecret == nil || a.TOTPEnabled {
		return false, nil
	}
	a.TOTPEnabled = true
	return true, nil
}

func (f *fakeUserStore) DisableTOTP(_ context.Context, id uint64) error {
	a := f.accounts[id]
	a.TOTPSecret = nil
	a.TOTPEnabled = false
	return nil
}

// stored returns the live record for direct manipulation in tests.
func (f *fakeUserStore) stored(email string) *model.Account {
	return f.accounts[f.byEmail[norm(email)]]
}

type fakeAttemptStore struct {
	rows []model.LoginAttempt
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.LoginAttempt) error {
	row := *a
	row.ID = uint64(len(f.rows) + 1)
	row.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeAttemptStore) ListByUser(_ context.Context, userID uint64, limit int) ([]model.LoginAttempt, error) {
	var out []model.LoginAttempt
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type fakeNotifier struct {
	failSend       bool
	verifySends    int
	resetSends     int
	lastVerifyTo   string
	lastVerifyCode string
	lastResetCode  string
}

func (f *fakeNotifier) SendVerificationCode(to, _, code string) error {
	if f.failSend {
		return errors.New("smtp: connection refused")
	}
	f.verifySends++
	f.lastVerifyTo = to
	f.lastVerifyCode = code
	return nil
}

func (f *fakeNotifier) SendPasswordResetCode(_, _, code string) error {
	if f.failSend {
		return errors.New("smtp: connection refused")
	}
	f.resetSends++
	f.lastResetCode = code
	return nil
}

type fakeEvents struct {
	events []queue.SecurityEvent
}

func (f *fakeEvents) PublishSecurityEvent(_ context.Context, ev queue.SecurityEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// ----- harness -----

type env struct {
	users    *fakeUserStore
	attempts *fakeAttemptStore
	notifier *fakeNotifier
	events   *fakeEvents
	codec    *token.Codec
	svc      *auth.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	codec, err := token.NewCodec(accessSecret, refreshSecret, 20, 7)
	require.NoError(t, err)
	e := &env{
		users:    newFakeUserStore(),
		attempts: &fakeAttemptStore{},
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
		codec:    codec,
	}
	e.svc = auth.NewService(e.users, e.attempts, e.notifier, codec,
		otp.TOTP{Issuer: "AuthTest"}, e.events, 15*time.Minute, bcrypt.MinCost)
	return e
}

func (e *env) signUp(t *testing.T, email string) auth.Profile {
	t.Helper()
	p, err := e.svc.SignUp(context.Background(), "A", "B", email, goodPassword)
	require.NoError(t, err)
	return p
}

func (e *env) verify(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, e.svc.VerifyEmail(context.Background(), email, e.notifier.lastVerifyCode))
}

func (e *env) signUpVerified(t *testing.T, email string) auth.Profile {
	t.Helper()
	p := e.signUp(t, email)
	e.verify(t, email)
	return p
}

// ----- signup -----

func TestSignUp_HashesPassword(t *testing.T) {
	e := newEnv(t)
	p := e.signUp(t, "a@x.com")

	assert.Equal(t, "a@x.com", p.Email)
	assert.False(t, p.IsVerified)

	stored := e.users.stored("a@x.com")
	assert.NotEqual(t, goodPassword, stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(goodPassword)))
	require.NotNil(t, stored.VerificationCode)
	require.NotNil(t, stored.CodeExpiry)
	assert.Regexp(t, `^\d{6}$`, *stored.VerificationCode)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), *stored.CodeExpiry, 5*time.Second)
	assert.Equal(t, *stored.VerificationCode, e.notifier.lastVerifyCode)
	assert.Equal(t, "a@x.com", e.notifier.lastVerifyTo)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")

	_, err := e.svc.SignUp(context.Background(), "A", "B", "a@x.com", goodPassword)
	assert.ErrorIs(t, err, auth.ErrConflict)
	// The duplicate must be rejected before any email goes out.
	assert.Equal(t, 1, e.notifier.verifySends)
}

func TestSignUp_WeakPassword(t *testing.T) {
	e := newEnv(t)
	for _, pw := range []string{"short1", "password123", "12345678"} {
		_, err := e.svc.SignUp(context.Background(), "A", "B", "a@x.com", pw)
		assert.Equal(t, auth.KindWeakPassword, auth.KindOf(err), "password %q", pw)
	}
	assert.Empty(t, e.users.accounts)
}

func TestSignUp_DeliveryFailureLeavesNoAccount(t *testing.T) {
	e := newEnv(t)
	e.notifier.failSend = true

	_, err := e.svc.SignUp(context.Background(), "A", "B", "a@x.com", goodPassword)
	assert.Equal(t, auth.KindDeliveryFailure, auth.KindOf(err))
	// Delivery failed before persistence: no orphaned unverifiable account.
	assert.Empty(t, e.users.accounts)
}

// ----- signin -----

func TestSignIn_EnumerationSafety(t *testing.T) {
	e := newEnv(t)
	e.signUpVerified(t, "a@x.com")

	_, errUnknown := e.svc.SignIn(context.Background(), "nobody@x.com", goodPassword, rc)
	_, errWrongPw := e.svc.SignIn(context.Background(), "a@x.com", "wrong-password", rc)

	assert.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, auth.ErrInvalidCredentials)
	assert.Equal(t, errUnknown, errWrongPw)

	// Only the resolvable account gets an audit row.
	require.Len(t, e.attempts.rows, 1)
	assert.False(t, e.attempts.rows[0].Success)
	assert.Equal(t, auth.DeviceDesktop, e.attempts.rows[0].Device)
	assert.Equal(t, rc.IP, e.attempts.rows[0].IP)
}

func TestSignIn_NotVerified(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")

	_, err := e.svc.SignIn(context.Background(), "a@x.com", goodPassword, rc)
	assert.ErrorIs(t, err, auth.ErrNotVerified)
	assert.Empty(t, e.attempts.rows)
}

func TestSignIn_Success(t *testing.T) {
	e := newEnv(t)
	p := e.signUpVerified(t, "a@x.com")

	res, err := e.svc.SignIn(context.Background(), "a@x.com", goodPassword, rc)
	require.NoError(t, err)
	assert.False(t, res.RequiresOTP)
	assert.Equal(t, p.ID, res.Profile.ID)

	claims, err := e.codec.VerifyAccess(res.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)
	_, err = e.codec.VerifyRefresh(res.Refresh.Token)
	require.NoError(t, err)

	require.Len(t, e.attempts.rows, 1)
	assert.True(t, e.attempts.rows[0].Success)
	require.Len(t, e.events.events, 1)
	assert.Equal(t, queue.EventLoginSucceeded, e.events.events[0].Type)
}

// ----- email verification -----

func TestVerifyEmail_Errors(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.VerifyEmail(ctx, "nobody@x.com", "000000"), auth.ErrNotFound)
	assert.ErrorIs(t, e.svc.VerifyEmail(ctx, "a@x.com", "999999"), auth.ErrInvalidCode)

	// Exact code, but past its expiry.
	stored := e.users.stored("a@x.com")
	past := time.Now().UTC().Add(-time.Minute)
	stored.CodeExpiry = &past
	assert.ErrorIs(t, e.svc.VerifyEmail(ctx, "a@x.com", *stored.VerificationCode), auth.ErrCodeExpired)
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")
	code := e.notifier.lastVerifyCode
	ctx := context.Background()

	require.NoError(t, e.svc.VerifyEmail(ctx, "a@x.com", code))
	stored := e.users.stored("a@x.com")
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.VerificationCode)
	assert.Nil(t, stored.CodeExpiry)

	// The code was nulled by the first consumption.
	assert.ErrorIs(t, e.svc.VerifyEmail(ctx, "a@x.com", code), auth.ErrAlreadyVerified)
}

func TestVerifyEmail_LosesRace(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")
	// Simulate a concurrent request winning the conditional update.
	e.users.consumeVerificationHook = func() (bool, error) { return false, nil }

	err := e.svc.VerifyEmail(context.Background(), "a@x.com", e.notifier.lastVerifyCode)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestResendVerificationCode(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "a@x.com")
	first := e.notifier.lastVerifyCode
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.ResendVerificationCode(ctx, "nobody@x.com"), auth.ErrNotFound)

	require.NoError(t, e.svc.ResendVerificationCode(ctx, "a@x.com"))
	assert.Equal(t, 2, e.notifier.verifySends)
	stored := e.users.stored("a@x.com")
	require.NotNil(t, stored.VerificationCode)
	assert.Equal(t, e.notifier.lastVerifyCode, *stored.VerificationCode)

	// The old code is gone once a fresh one is issued (unless the RNG
	// repeats itself, which it statistically will not).
	if first != e.notifier.lastVerifyCode {
		assert.ErrorIs(t, e.svc.VerifyEmail(ctx, "a@x.com", first), auth.ErrInvalidCode)
	}

	e.verify(t, "a@x.com")
	assert.ErrorIs(t, e.svc.ResendVerificationCode(ctx, "a@x.com"), auth.ErrAlreadyVerified)
}

// ----- password reset -----

func TestResetPassword_FullFlow(t *testing.T) {
	e := newEnv(t)
	e.signUpVerified(t, "a@x.com")
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.ForgotPassword(ctx, "nobody@x.com"), auth.ErrNotFound)
	require.NoError(t, e.svc.ForgotPassword(ctx, "a@x.com"))
	code := e.notifier.lastResetCode
	require.Regexp(t, `^\d{6}$`, code)

	assert.ErrorIs(t, e.svc.ResetPassword(ctx, "a@x.com", "000000", "N3w!Passw0rd"), auth.ErrInvalidCode)
	assert.Equal(t, auth.KindWeakPassword, auth.KindOf(e.svc.ResetPassword(ctx, "a@x.com", code, "short")))

	require.NoError(t, e.svc.ResetPassword(ctx, "a@x.com", code, "N3w!Passw0rd"))

	// Old password out, new password in.
	_, err := e.svc.SignIn(ctx, "a@x.com", goodPassword, rc)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = e.svc.SignIn(ctx, "a@x.com", "N3w!Passw0rd", rc)
	assert.NoError(t, err)

	// Single use: the code was cleared with the same update.
	assert.ErrorIs(t, e.svc.ResetPassword(ctx, "a@x.com", code, "An0ther!Pass"), auth.ErrInvalidCode)
}

func TestResetPassword_ExpiredCode(t *testing.T) {
	e := newEnv(t)
	e.signUpVerified(t, "a@x.com")
	ctx := context.Background()

	require.NoError(t, e.svc.ForgotPassword(ctx, "a@x.com"))
	stored := e.users.stored("a@x.com")
	past := time.Now().UTC().Add(-time.Second)
	stored.ResetPasswordExpiry = &past

	err := e.svc.ResetPassword(ctx, "a@x.com", e.notifier.lastResetCode, "N3w!Passw0rd")
	assert.ErrorIs(t, err, auth.ErrCodeExpired)
}

// ----- 2FA -----

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	return code
}

func TestTwoFactor_EndToEnd(t *testing.T) {
	e := newEnv(t)
	p := e.signUpVerified(t, "a@x.com")
	ctx := context.Background()

	// Nothing set up yet.
	assert.ErrorIs(t, e.svc.Verify2FA(ctx, p.ID, "123456"), auth.ErrSetupNotInitiated)
	assert.ErrorIs(t, e.svc.Disable2FA(ctx, p.ID, "123456"), auth.ErrNotEnabled)

	setup, err := e.svc.Setup2FA(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	// A pending secret alone does not turn 2FA on.
	stored := e.users.stored("a@x.com")
	assert.False(t, stored.TOTPEnabled)
	res, err := e.svc.SignIn(ctx, "a@x.com", goodPassword, rc)
	require.NoError(t, err)
	assert.False(t, res.RequiresOTP)

	// Re-running setup replaces the pending secret.
	setup2, err := e.svc.Setup2FA(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, setup.Secret, setup2.Secret)

	assert.ErrorIs(t, e.svc.Verify2FA(ctx, p.ID, "000000"), auth.ErrInvalidOtp)
	require.NoError(t, e.svc.Verify2FA(ctx, p.ID, totpCode(t, setup2.Secret)))
	assert.True(t, e.users.stored("a@x.com").TOTPEnabled)
	assert.ErrorIs(t, e.svc.Verify2FA(ctx, p.ID, totpCode(t, setup2.Secret)), auth.ErrAlreadyEnabled)
	_, err = e.svc.Setup2FA(ctx, p.ID)
	assert.ErrorIs(t, err, auth.ErrAlreadyEnabled)

	// Signin now parks at the OTP step without tokens or an audit row.
	before := len(e.attempts.rows)
	res, err = e.svc.SignIn(ctx, "a@x.com", goodPassword, rc)
	require.NoError(t, err)
	assert.True(t, res.RequiresOTP)
	assert.Empty(t, res.Access.Token)
	assert.Empty(t, res.Refresh.Token)
	assert.Len(t, e.attempts.rows, before)

	// Wrong OTP: failed attempt recorded, no tokens.
	_, err = e.svc.SignIn2FA(ctx, "a@x.com", goodPassword, "000000", rc)
	assert.ErrorIs(t, err, auth.ErrInvalidOtp)
	require.Len(t, e.attempts.rows, before+1)
	assert.False(t, e.attempts.rows[before].Success)

	// Correct OTP: session opens.
	res, err = e.svc.SignIn2FA(ctx, "a@x.com", goodPassword, totpCode(t, setup2.Secret), rc)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Access.Token)
	require.Len(t, e.attempts.rows, before+2)
	assert.True(t, e.attempts.rows[before+1].Success)

	// Disable needs a live code, then wipes the secret.
	assert.ErrorIs(t, e.svc.Disable2FA(ctx, p.ID, "000000"), auth.ErrInvalidOtp)
	require.NoError(t, e.svc.Disable2FA(ctx, p.ID, totpCode(t, setup2.Secret)))
	stored = e.users.stored("a@x.com")
	assert.False(t, stored.TOTPEnabled)
	assert.Nil(t, stored.TOTPSecret)
}

func TestSignIn2FA_WrongPassword(t *testing.T) {
	e := newEnv(t)
	e.signUpVerified(t, "a@x.com")

	_, err := e.svc.SignIn2FA(context.Background(), "a@x.com", "wrong-password", "123456", rc)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	require.Len(t, e.attempts.rows, 1)
	assert.False(t, e.attempts.rows[0].Success)
}

// ----- refresh -----

func TestRefreshAccessToken(t *testing.T) {
	e := newEnv(t)
	p := e.signUpVerified(t, "a@x.com")

	res, err := e.svc.SignIn(context.Background(), "a@x.com", goodPassword, rc)
	require.NoError(t, err)

	access, err := e.svc.RefreshAccessToken(res.Refresh.Token)
	require.NoError(t, err)
	claims, err := e.codec.VerifyAccess(access.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.UserID)
}

func TestRefreshAccessToken_ExpiredVsTampered(t *testing.T) {
	e := newEnv(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uint64(1),
		"role": model.RoleUser,
		"exp":  time.Now().UTC().Add(-time.Hour).Unix(),
		"iat":  time.Now().UTC().Add(-2 * time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte(refreshSecret))
	require.NoError(t, err)

	_, err = e.svc.RefreshAccessToken(signed)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)

	_, err = e.svc.RefreshAccessToken(signed + "x")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	// An access token is not a refresh token.
	e.signUpVerified(t, "b@x.com")
	session, err := e.svc.SignIn(context.Background(), "b@x.com", goodPassword, rc)
	require.NoError(t, err)
	_, err = e.svc.RefreshAccessToken(session.Access.Token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

// ----- history -----

func TestLoginHistory_NewestFirst(t *testing.T) {
	e := newEnv(t)
	p := e.signUpVerified(t, "a@x.com")
	ctx := context.Background()

	_, _ = e.svc.SignIn(ctx, "a@x.com", "wrong-password", rc)
	_, err := e.svc.SignIn(ctx, "a@x.com", goodPassword, rc)
	require.NoError(t, err)

	history, err := e.svc.LoginHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Success)
	assert.False(t, history[1].Success)
}
