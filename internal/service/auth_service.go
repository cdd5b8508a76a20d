package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/config"
	"github.com/spec-kit/clinic-service/internal/domain"
	"github.com/spec-kit/clinic-service/internal/events"
	"github.com/spec-kit/clinic-service/internal/observability"
	"github.com/spec-kit/clinic-service/internal/otp"
	"github.com/spec-kit/clinic-service/internal/repository"
	apperrors "github.com/spec-kit/clinic-service/pkg/util/errorutil"
)

// TokenIssuer mints session tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(subjectID int64, role domain.Role) (string, time.Time, error)
}

// Session is returned by register and login.
type Session struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// RegisterInput carries new account fields.
type RegisterInput struct {
	Role     domain.Role
	Name     string
	Email    string
	Password string
}

// AuthService coordinates registration, login and password flows.
type AuthService struct {
	accounts   repository.AccountRepository
	tokens     TokenIssuer
	otps       otp.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Accounts   repository.AccountRepository
	Tokens     TokenIssuer
	OTP        otp.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:   deps.Accounts,
		tokens:     deps.Tokens,
		otps:       deps.OTP,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a patient or doctor account and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	if input.Role != domain.RolePatient && input.Role != domain.RoleDoctor {
		return nil, apperrors.NewValidationError("self registration is limited to patients and doctors", nil)
	}
	account, err := s.createAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.session(account)
}

// RegisterAdmin creates another administrator on behalf of an existing one.
func (s *AuthService) RegisterAdmin(ctx context.Context, actor domain.Identity, name, email, password string) (*domain.Account, error) {
	if !auth.Authorize(actor.Role, domain.CapRegisterAdmin) {
		return nil, auth.ErrForbidden
	}
	return s.createAccount(ctx, RegisterInput{Role: domain.RoleAdmin, Name: name, Email: email, Password: password})
}

// EnsureBootstrapAdmin creates the configured first admin unless it already exists.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := s.accounts.GetByEmail(ctx, domain.RoleAdmin, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	if _, err := s.createAccount(ctx, RegisterInput{Role: domain.RoleAdmin, Name: "Administrator", Email: email, Password: password}); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", zap.String("email", email))
	return true, nil
}

func (s *AuthService) createAccount(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("name, email, password required", nil)
	}
	if err := auth.CheckPasswordPolicy(input.Password); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	// Password reset resolves an email to one account across all roles, so an address
	// already held by any role is refused here and by the account_emails constraint.
	existing, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if existing != nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"role": input.Role})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	account := &domain.Account{
		Role:         input.Role,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"role": input.Role})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventAccountRegistered,
		Subject: account.Identity(),
		Email:   account.Email,
	})
	return account, nil
}

// Login checks credentials for the role's account table and issues a token.
func (s *AuthService) Login(ctx context.Context, role domain.Role, email, password string) (*Session, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", nil)
	}

	account, err := s.accounts.GetByEmail(ctx, role, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.loginFailed(ctx, role, email, "unknown_email")
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		s.loginFailed(ctx, role, email, "bad_password")
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	session, err := s.session(account)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuth("login", "success")
	s.publishEvent(ctx, events.Event{
		Type:    events.EventLoginSucceeded,
		Subject: account.Identity(),
		Email:   account.Email,
	})
	return session, nil
}

func (s *AuthService) loginFailed(ctx context.Context, role domain.Role, email, reason string) {
	s.metrics.RecordAuth("login", "failure")
	s.publishEvent(ctx, events.Event{
		Type:    events.EventLoginFailed,
		Email:   email,
		Payload: events.LoginFailedPayload{Role: role, Reason: reason},
	})
}

// RequestPasswordReset sends a passcode when email belongs to an account. Unknown emails,
// cooldown rejections and relay failures all succeed silently so the response does not
// reveal whether the email is registered. Relay failures are logged and counted.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if account == nil {
		s.metrics.RecordAuth("otp_request", "unknown_email")
		return nil
	}

	if _, err := s.otps.Generate(ctx, email); err != nil {
		switch {
		case errors.Is(err, otp.ErrCooldown):
			s.metrics.RecordAuth("otp_request", "cooldown")
			return nil
		case errors.Is(err, otp.ErrDelivery):
			s.metrics.RecordAuth("otp_request", "delivery_failed")
			s.logger.Error("otp delivery failed", zap.String("email", email), zap.Error(err))
			return nil
		default:
			return apperrors.NewInternalError(err)
		}
	}

	s.metrics.RecordAuth("otp_request", "sent")
	s.publishEvent(ctx, events.Event{
		Type:    events.EventPasswordResetRequested,
		Subject: account.Identity(),
		Email:   email,
	})
	return nil
}

// VerifyPasswordResetOtp checks a passcode without consuming it.
func (s *AuthService) VerifyPasswordResetOtp(ctx context.Context, email, code string) error {
	ok, err := s.otps.Verify(ctx, email, code)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		s.metrics.RecordAuth("otp_verify", "mismatch")
		return otp.ErrOtpMismatch
	}
	s.metrics.RecordAuth("otp_verify", "match")
	return nil
}

// ResetPassword replaces the password of the account owning email once the passcode
// matches, then clears the challenge.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := auth.CheckPasswordPolicy(newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	if err := s.VerifyPasswordResetOtp(ctx, email, code); err != nil {
		return err
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if account == nil {
		_ = s.otps.Clear(ctx, email)
		return otp.ErrOtpMismatch
	}

	if err := s.updatePassword(ctx, account, newPassword); err != nil {
		return err
	}
	if err := s.otps.Clear(ctx, email); err != nil {
		s.logger.Warn("otp clear failed", zap.String("email", email), zap.Error(err))
	}

	s.metrics.RecordAuth("password_reset", "success")
	s.publishEvent(ctx, events.Event{
		Type:    events.EventPasswordReset,
		Subject: account.Identity(),
		Email:   account.Email,
	})
	return nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Identity, currentPassword, newPassword string) error {
	if !auth.Authorize(actor.Role, domain.CapChangeOwnPassword) {
		return auth.ErrForbidden
	}
	if err := auth.CheckPasswordPolicy(newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	account, err := s.accounts.GetByID(ctx, actor.Role, actor.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrUnauthenticated
		}
		return apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	if err := s.updatePassword(ctx, account, newPassword); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventPasswordChanged,
		Subject: account.Identity(),
		Email:   account.Email,
	})
	return nil
}

func (s *AuthService) updatePassword(ctx context.Context, account *domain.Account, password string) error {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.Role, account.ID, hash); err != nil {
		return apperrors.NewInternalError(err)
	}
	account.PasswordHash = hash
	return nil
}

// findByEmail searches the role tables in domain.Roles order. It returns nil, nil when no
// account uses the email.
func (s *AuthService) findByEmail(ctx context.Context, email string) (*domain.Account, error) {
	for _, role := range domain.Roles {
		account, err := s.accounts.GetByEmail(ctx, role, email)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *AuthService) session(account *domain.Account) (*Session, error) {
	token, exp, err := s.tokens.Issue(account.ID, account.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{Account: account, Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
