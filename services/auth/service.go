// Package auth authenticates dashboard users and issues their access tokens.
package auth

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services"
	"github.com/structsense/dashboard/services/audit"
	"github.com/structsense/dashboard/services/ratelimit"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// MinPasswordLength is enforced on signup
const MinPasswordLength = 8

// PasswordHasher hashes and verifies secrets
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	Issue(userID uuid.UUID, email, role string) (string, time.Time, error)
	Lifetime() time.Duration
}

// AuditLogger records account events
type AuditLogger interface {
	LogUserSignup(user *models.User, req audit.RequestInfo) error
	LogLoginFailed(email string, req audit.RequestInfo, statusCode int, reason string) error
}

// Token is the result of a successful login
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignupInput holds the fields of a new account
type SignupInput struct {
	Email    string
	Password string
	FullName string
}

// Service implements signup and login
type Service struct {
	users   repositories.UserRepository
	hasher  PasswordHasher
	issuer  TokenIssuer
	limiter ratelimit.LoginLimiter
	audit   AuditLogger
	logger  *zap.Logger
}

// NewService creates a new auth service. A nil limiter disables throttling
// and a nil audit logger disables account audit events.
func NewService(
	users repositories.UserRepository,
	hasher PasswordHasher,
	issuer TokenIssuer,
	limiter ratelimit.LoginLimiter,
	auditLogger AuditLogger,
	logger *zap.Logger,
) *Service {
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &Service{
		users:   users,
		hasher:  hasher,
		issuer:  issuer,
		limiter: limiter,
		audit:   auditLogger,
		logger:  logger,
	}
}

// Signup creates a viewer account
func (s *Service) Signup(ctx context.Context, in SignupInput, req audit.RequestInfo) (*models.User, error) {
	email := models.NormalizeEmail(in.Email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, services.ErrInvalidEmail
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrWeakPassword.Message, nil).
			WithDetail("min_length", MinPasswordLength)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(email, hash, in.FullName, models.RoleViewer)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, services.FromRepository(err, services.ErrUserNotFound, services.ErrDuplicateEmail)
	}

	s.logger.Info("user signed up",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email))

	if s.audit != nil {
		if err := s.audit.LogUserSignup(user, req); err != nil {
			s.logger.Warn("failed to queue signup audit event", zap.Error(err))
		}
	}

	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist yet.
// The password policy is not applied so operators can seed any secret.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.User, bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, false, services.ErrInvalidInput
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, false, services.FromRepository(err, services.ErrUserNotFound, nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(email, hash, "Administrator", models.RoleAdmin)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, services.FromRepository(err, services.ErrUserNotFound, services.ErrDuplicateEmail)
	}

	s.logger.Info("bootstrap admin created", zap.String("email", email))
	return user, true, nil
}

// Authenticate verifies credentials and issues an access token. Failed
// attempts are counted per email and client IP.
func (s *Service) Authenticate(ctx context.Context, email, password string, req audit.RequestInfo) (*Token, *models.User, error) {
	email = models.NormalizeEmail(email)

	if err := s.limiter.Check(ctx, email, req.IPAddress); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return nil, nil, services.ErrTooManyLoginAttempts
		}
		// a broken limiter must not lock everyone out
		s.logger.Warn("login limiter check failed", zap.Error(err))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, s.fail(ctx, email, req, "user_not_found", services.ErrInvalidCredentials)
		}
		return nil, nil, services.FromRepository(err, services.ErrUserNotFound, nil)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}
	if err != nil || !ok {
		return nil, nil, s.fail(ctx, email, req, "bad_password", services.ErrInvalidCredentials)
	}

	if !user.IsActive {
		return nil, nil, s.fail(ctx, email, req, "inactive", services.ErrInactiveUser)
	}

	if err := s.limiter.Reset(ctx, email, req.IPAddress); err != nil {
		s.logger.Warn("failed to reset login limiter", zap.Error(err))
	}

	token, err := s.issueFor(user)
	if err != nil {
		return nil, nil, err
	}
	return token, user, nil
}

// CurrentUser loads the account behind a token subject
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrUserNotFound, nil)
	}
	if !user.IsActive {
		return nil, services.ErrInactiveUser
	}
	return user, nil
}

func (s *Service) issueFor(user *models.User) (*Token, error) {
	signed, expiresAt, err := s.issuer.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, services.WrapInternal("failed to issue token", err)
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(s.issuer.Lifetime().Seconds()),
		ExpiresAt:   expiresAt,
	}, nil
}

// fail records a failed attempt and returns the error the caller should see.
// Exhausting the budget on this attempt turns it into a rate limit error.
func (s *Service) fail(ctx context.Context, email string, req audit.RequestInfo, reason string, err *services.DomainError) error {
	result := error(err)
	status := 401

	if limitErr := s.limiter.RecordFailure(ctx, email, req.IPAddress); limitErr != nil {
		if errors.Is(limitErr, ratelimit.ErrRateLimited) {
			result = services.ErrTooManyLoginAttempts
			status = 429
		} else {
			s.logger.Warn("failed to record login failure", zap.Error(limitErr))
		}
	}

	s.logger.Info("login failed",
		zap.String("email", email),
		zap.String("ip", req.IPAddress),
		zap.String("reason", reason))

	if s.audit != nil {
		if auditErr := s.audit.LogLoginFailed(email, req, status, reason); auditErr != nil {
			s.logger.Debug("failed to queue login audit event", zap.Error(auditErr))
		}
	}

	return result
}
