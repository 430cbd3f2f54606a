package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/otp"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/token"
)

// UserStore is the narrow persistence contract the core depends on.
// Lookups return repository.ErrNotFound when no row matches; Create
// returns repository.ErrEmailExists on a duplicate email.  The
// Consume* and EnableTOTP methods are conditional single updates and
// report false when the condition did not hold, which is how racing
// consumers of a one-time code are serialized.
type UserStore interface {
	Create(ctx context.Context, a *model.Account) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	SetVerificationCode(ctx context.Context, id uint64, code string, expiry time.Time) error
	ConsumeVerificationCode(ctx context.Context, id uint64, code string, now time.Time) (bool, error)
	SetResetCode(ctx context.Context, id uint64, code string, expiry time.Time) error
	ConsumeResetCode(ctx context.Context, id uint64, code, newHash string, now time.Time) (bool, error)
	SetPendingTOTPSecret(ctx context.Context, id uint64, secret string) error
	EnableTOTP(ctx context.Context, id uint64) (bool, error)
	DisableTOTP(ctx context.Context, id uint64) error
}

// AttemptStore appends to and reads the login audit trail.
type AttemptStore interface {
	Create(ctx context.Context, a *model.LoginAttempt) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LoginAttempt, error)
}

// Notifier delivers one-time codes to an email address.
type Notifier interface {
	SendVerificationCode(to, firstName, code string) error
	SendPasswordResetCode(to, firstName, code string) error
}

// EventPublisher streams security events to interested consumers.
// Publishing is best-effort; failures never fail the request.
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, ev queue.SecurityEvent) error
}

// RequestContext carries the client metadata recorded on login
// attempts.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Profile is the sanitized public view of an account.  It never
// carries the password hash or any secret.
type Profile struct {
	ID          uint64 `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Role        string `json:"role"`
	IsVerified  bool   `json:"isVerified"`
	TOTPEnabled bool   `json:"totpEnabled"`
}

// SignInResult is the outcome of a successful credential check.  When
// RequiresOTP is set the client must repeat the call on the 2FA
// endpoint with a TOTP code; no tokens are present in that case.
type SignInResult struct {
	RequiresOTP bool
	Profile     Profile
	Access      token.Issued
	Refresh     token.Issued
}

// TwoFactorSetup is returned from 2FA setup: the shared secret plus a
// scannable provisioning image for authenticator apps.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

const loginHistoryLimit = 20

// Service orchestrates the authentication flows.  It holds no
// per-request state; every operation runs to completion against the
// injected collaborators within one call.
type Service struct {
	users      UserStore
	attempts   AttemptStore
	notifier   Notifier
	tokens     *token.Codec
	totp       otp.TOTP
	events     EventPublisher // optional; nil disables the event stream
	codeTTL    time.Duration
	bcryptCost int
}

// NewService wires the orchestrator.  events may be nil.
func NewService(users UserStore, attempts AttemptStore, notifier Notifier, tokens *token.Codec, totp otp.TOTP, events EventPublisher, codeTTL time.Duration, bcryptCost int) *Service {
	return &Service{
		users:      users,
		attempts:   attempts,
		notifier:   notifier,
		tokens:     tokens,
		totp:       totp,
		events:     events,
		codeTTL:    codeTTL,
		bcryptCost: bcryptCost,
	}
}

// SignUp registers a new account.  The verification email is sent
// before the account is persisted: a failed delivery fails the whole
// signup so no unverifiable account is ever created.
func (s *Service) SignUp(ctx context.Context, firstName, lastName, email, password string) (Profile, error) {
	if err := CheckPasswordPolicy(password); err != nil {
		return Profile{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return Profile{}, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Profile{}, internalErr(err)
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return Profile{}, internalErr(err)
	}
	code, err := otp.GenerateNumericCode()
	if err != nil {
		return Profile{}, internalErr(err)
	}
	expiry := time.Now().UTC().Add(s.codeTTL)

	if err := s.notifier.SendVerificationCode(email, firstName, code); err != nil {
		return Profile{}, deliveryErr(err)
	}

	a := &model.Account{
		Email:            email,
		FirstName:        firstName,
		LastName:         lastName,
		PasswordHash:     hash,
		Role:             model.RoleUser,
		IsVerified:       false,
		VerificationCode: &code,
		CodeExpiry:       &expiry,
	}
	id, err := s.users.Create(ctx, a)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return Profile{}, ErrConflict
		}
		return Profile{}, internalErr(err)
	}
	a.ID = id
	return profileOf(a), nil
}

// SignIn validates credentials and either issues a token pair, asks
// for a TOTP code, or rejects.  Unknown email and wrong password
// produce the identical error so accounts cannot be enumerated.
func (s *Service) SignIn(ctx context.Context, email, password string, rc RequestContext) (SignInResult, error) {
	a, err := s.authenticate(ctx, email, password, rc)
	if err != nil {
		return SignInResult{}, err
	}
	if !a.IsVerified {
		return SignInResult{}, ErrNotVerified
	}
	if a.TOTPEnabled {
		// No attempt is recorded yet; that happens once the 2FA step resolves.
		return SignInResult{RequiresOTP: true, Profile: profileOf(a)}, nil
	}
	return s.openSession(ctx, a, rc)
}

// SignIn2FA completes a two-factor signin.  Credentials are
// re-validated from scratch; the flow is stateless between the two
// steps.
func (s *Service) SignIn2FA(ctx context.Context, email, password, totpCode string, rc RequestContext) (SignInResult, error) {
	a, err := s.authenticate(ctx, email, password, rc)
	if err != nil {
		return SignInResult{}, err
	}
	if !a.IsVerified {
		return SignInResult{}, ErrNotVerified
	}
	if a.TOTPEnabled {
		if a.TOTPSecret == nil {
			// totp_enabled without a secret would violate a store invariant.
			return SignInResult{}, internalErr(errors.New("auth: enabled 2FA with no secret"))
		}
		if totpCode == "" || !s.totp.VerifyCode(totpCode, *a.TOTPSecret) {
			if err := s.recordAttempt(ctx, a, rc, false); err != nil {
				return SignInResult{}, internalErr(err)
			}
			return SignInResult{}, ErrInvalidOtp
		}
	}
	return s.openSession(ctx, a, rc)
}

// RefreshAccessToken exchanges a valid refresh token for a fresh
// access token.  The refresh token itself is not rotated; its validity
// is purely signature plus expiry.
func (s *Service) RefreshAccessToken(refreshToken string) (token.Issued, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return token.Issued{}, ErrTokenExpired
		}
		return token.Issued{}, ErrTokenInvalid
	}
	access, err := s.tokens.IssueAccess(claims.UserID, claims.Role)
	if err != nil {
		return token.Issued{}, internalErr(err)
	}
	return access, nil
}

// VerifyEmail consumes a pending verification code.  The final
// check-and-clear is a single conditional update in the store, so a
// code can only ever be consumed once even under concurrent requests.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	a, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a.IsVerified {
		return ErrAlreadyVerified
	}
	if a.VerificationCode == nil || a.CodeExpiry == nil {
		return ErrInvalidCode
	}
	if *a.VerificationCode != code {
		return ErrInvalidCode
	}
	now := time.Now().UTC()
	if now.After(*a.CodeExpiry) {
		return ErrCodeExpired
	}
	ok, err := s.users.ConsumeVerificationCode(ctx, a.ID, code, now)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		// Lost the race: a concurrent request consumed the code first.
		return ErrInvalidCode
	}
	return nil
}

// ResendVerificationCode issues a fresh code, replacing any pending
// one, and emails it.
func (s *Service) ResendVerificationCode(ctx context.Context, email string) error {
	a, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a.IsVerified {
		return ErrAlreadyVerified
	}
	code, err := otp.GenerateNumericCode()
	if err != nil {
		return internalErr(err)
	}
	if err := s.notifier.SendVerificationCode(a.Email, a.FirstName, code); err != nil {
		return deliveryErr(err)
	}
	if err := s.users.SetVerificationCode(ctx, a.ID, code, time.Now().UTC().Add(s.codeTTL)); err != nil {
		return internalErr(err)
	}
	return nil
}

// ForgotPassword starts a password reset by emailing a one-time code.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	a, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := otp.GenerateNumericCode()
	if err != nil {
		return internalErr(err)
	}
	if err := s.notifier.SendPasswordResetCode(a.Email, a.FirstName, code); err != nil {
		return deliveryErr(err)
	}
	if err := s.users.SetResetCode(ctx, a.ID, code, time.Now().UTC().Add(s.codeTTL)); err != nil {
		return internalErr(err)
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the password.  The
// hash swap and code clearing happen in one conditional update.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	a, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a.ResetPasswordCode == nil || a.ResetPasswordExpiry == nil {
		return ErrInvalidCode
	}
	if *a.ResetPasswordCode != code {
		return ErrInvalidCode
	}
	now := time.Now().UTC()
	if now.After(*a.ResetPasswordExpiry) {
		return ErrCodeExpired
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return internalErr(err)
	}
	ok, err := s.users.ConsumeResetCode(ctx, a.ID, code, hash, now)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return ErrInvalidCode
	}
	s.publishEvent(ctx, queue.EventPasswordReset, a, RequestContext{})
	return nil
}

// Setup2FA generates a fresh TOTP secret for an account and stores it
// unconfirmed.  Calling setup again before verification simply
// replaces the pending secret.
func (s *Service) Setup2FA(ctx context.Context, accountID uint64) (TwoFactorSetup, error) {
	a, err := s.getByID(ctx, accountID)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if a.TOTPEnabled {
		return TwoFactorSetup{}, ErrAlreadyEnabled
	}
	enr, err := s.totp.GenerateSecret(a.Email)
	if err != nil {
		return TwoFactorSetup{}, internalErr(err)
	}
	qr, err := otp.ProvisioningImage(enr.URI)
	if err != nil {
		return TwoFactorSetup{}, internalErr(err)
	}
	if err := s.users.SetPendingTOTPSecret(ctx, a.ID, enr.Secret); err != nil {
		return TwoFactorSetup{}, internalErr(err)
	}
	return TwoFactorSetup{Secret: enr.Secret, QRCode: qr}, nil
}

// Verify2FA confirms a pending 2FA setup.  This is the only path that
// turns 2FA on; holding a secret alone is never sufficient.
func (s *Service) Verify2FA(ctx context.Context, accountID uint64, code string) error {
	a, err := s.getByID(ctx, accountID)
	if err != nil {
		return err
	}
	if a.TOTPEnabled {
		return ErrAlreadyEnabled
	}
	if a.TOTPSecret == nil {
		return ErrSetupNotInitiated
	}
	if !s.totp.VerifyCode(code, *a.TOTPSecret) {
		return ErrInvalidOtp
	}
	ok, err := s.users.EnableTOTP(ctx, a.ID)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return ErrSetupNotInitiated
	}
	s.publishEvent(ctx, queue.EventTwoFAEnabled, a, RequestContext{})
	return nil
}

// Disable2FA turns 2FA off and wipes the secret.  A valid current
// code is required as proof of possession, not just a bearer token.
func (s *Service) Disable2FA(ctx context.Context, accountID uint64, code string) error {
	a, err := s.getByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !a.TOTPEnabled || a.TOTPSecret == nil {
		return ErrNotEnabled
	}
	if !s.totp.VerifyCode(code, *a.TOTPSecret) {
		return ErrInvalidOtp
	}
	if err := s.users.DisableTOTP(ctx, a.ID); err != nil {
		return internalErr(err)
	}
	s.publishEvent(ctx, queue.EventTwoFADisabled, a, RequestContext{})
	return nil
}

// LoginHistory lists the most recent login attempts for an account,
// newest first.
func (s *Service) LoginHistory(ctx context.Context, accountID uint64) ([]model.LoginAttempt, error) {
	attempts, err := s.attempts.ListByUser(ctx, accountID, loginHistoryLimit)
	if err != nil {
		return nil, internalErr(err)
	}
	return attempts, nil
}

// authenticate resolves an account by email and checks the password.
// A wrong password records a failed attempt; an unknown email cannot
// (there is no account to attach it to) but returns the same error.
func (s *Service) authenticate(ctx context.Context, email, password string, rc RequestContext) (*model.Account, error) {
	a, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, internalErr(err)
	}
	if !VerifyPassword(a.PasswordHash, password) {
		if err := s.recordAttempt(ctx, a, rc, false); err != nil {
			return nil, internalErr(err)
		}
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// openSession records a successful attempt and issues the token pair.
func (s *Service) openSession(ctx context.Context, a *model.Account, rc RequestContext) (SignInResult, error) {
	if err := s.recordAttempt(ctx, a, rc, true); err != nil {
		return SignInResult{}, internalErr(err)
	}
	access, err := s.tokens.IssueAccess(a.ID, a.Role)
	if err != nil {
		return SignInResult{}, internalErr(err)
	}
	refresh, err := s.tokens.IssueRefresh(a.ID, a.Role)
	if err != nil {
		return SignInResult{}, internalErr(err)
	}
	return SignInResult{Profile: profileOf(a), Access: access, Refresh: refresh}, nil
}

// recordAttempt appends one audit row and mirrors it onto the event
// stream.  The audit write is load-bearing; the event publish is not.
func (s *Service) recordAttempt(ctx context.Context, a *model.Account, rc RequestContext, success bool) error {
	attempt := &model.LoginAttempt{
		UserID:    a.ID,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
		Device:    DeviceClass(rc.UserAgent),
		Success:   success,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return err
	}
	evType := queue.EventLoginFailed
	if success {
		evType = queue.EventLoginSucceeded
	}
	s.publishEvent(ctx, evType, a, rc)
	return nil
}

func (s *Service) publishEvent(ctx context.Context, evType string, a *model.Account, rc RequestContext) {
	if s.events == nil {
		return
	}
	ev := queue.SecurityEvent{
		EventID:    uuid.NewString(),
		Type:       evType,
		UserID:     a.ID,
		Email:      a.Email,
		IP:         rc.IP,
		UserAgent:  rc.UserAgent,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if rc.UserAgent != "" {
		ev.Device = DeviceClass(rc.UserAgent)
	}
	if err := s.events.PublishSecurityEvent(ctx, ev); err != nil {
		log.Printf("auth: publish %s event failed: %v", evType, err)
	}
}

func (s *Service) getByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalErr(err)
	}
	return a, nil
}

func (s *Service) getByID(ctx context.Context, id uint64) (*model.Account, error) {
	a, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalErr(err)
	}
	return a, nil
}

func profileOf(a *model.Account) Profile {
	return Profile{
		ID:          a.ID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Role:        a.Role,
		IsVerified:  a.IsVerified,
		TOTPEnabled: a.TOTPEnabled,
	}
}
