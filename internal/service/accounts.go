package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/docdirectory/internal/auth"
	"github.com/geocoder89/docdirectory/internal/domain/user"
	"github.com/geocoder89/docdirectory/internal/notifications"
	"github.com/geocoder89/docdirectory/internal/security"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrEmailRequired         = errors.New("email is required")
	ErrVerifyTokenMissing    = errors.New("verification token missing")
	ErrVerifyTokenExpired    = errors.New("verification token expired")
	ErrVerifyTokenInvalid    = errors.New("invalid verification token")
	ErrResetInputMissing     = errors.New("reset token and password are required")
	ErrInvalidPassword       = errors.New("password must be between 6 and 72 bytes")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrMailDelivery          = errors.New("email delivery failed")
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	MarkVerified(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID int64) (string, error)
	GenerateVerifyToken(userID int64) (string, error)
	GenerateResetToken(userID int64) (string, error)
	VerifyEmailToken(token string) (*auth.Claims, error)
	VerifyResetToken(token string) (*auth.Claims, error)
	Revoke(ctx context.Context, token string) error
}

type AccountService struct {
	users  UserStore
	tokens TokenIssuer
	mailer notifications.Notifier
	log    *slog.Logger
}

func NewAccountService(users UserStore, tokens TokenIssuer, mailer notifications.Notifier, log *slog.Logger) *AccountService {
	if log == nil {
		log = slog.Default()
	}
	return &AccountService{users: users, tokens: tokens, mailer: mailer, log: log}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Password  string
}

// Register creates an unverified user and mails a verification link.
// A mail failure is returned after the user row is already committed.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (user.User, error) {
	if err := security.ValidatePassword(in.Password); err != nil {
		return user.User{}, ErrInvalidPassword
	}

	email := user.NormalizeEmail(in.Email)

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user.User{}, user.ErrDuplicateEmail
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return user.User{}, err
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.GenerateVerifyToken(u.ID)
	if err != nil {
		return u, fmt.Errorf("generate verify token: %w", err)
	}

	if err := s.mailer.SendVerificationEmail(ctx, notifications.EmailInput{Email: u.Email, Token: token}); err != nil {
		s.log.ErrorContext(ctx, "verification email failed", "user_id", u.ID, "err", err)
		return u, fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// VerifyEmail marks the token's user verified. alreadyVerified reports a repeat confirmation.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (alreadyVerified bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, ErrVerifyTokenMissing
	}

	claims, err := s.tokens.VerifyEmailToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return false, ErrVerifyTokenExpired
		}
		return false, ErrVerifyTokenInvalid
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return false, err
	}
	if u.IsVerified {
		return true, nil
	}

	if err := s.users.MarkVerified(ctx, u.ID); err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}

	s.log.InfoContext(ctx, "email verified", "user_id", u.ID)
	return false, nil
}

type LoginResult struct {
	Token string
	User  user.User
}

// Login returns ErrInvalidCredentials for both unknown emails and wrong passwords.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			security.BurnCompare(password)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := security.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("check password: %w", err)
	}

	if !u.IsVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	token, err := s.tokens.GenerateAccessToken(u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate access token: %w", err)
	}

	return LoginResult{Token: token, User: u}, nil
}

// Logout revokes the presented access token when a denylist is configured.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := s.tokens.GenerateResetToken(u.ID)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, notifications.EmailInput{Email: u.Email, Token: token}); err != nil {
		s.log.ErrorContext(ctx, "reset email failed", "user_id", u.ID, "err", err)
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}
	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	if strings.TrimSpace(token) == "" || password == "" {
		return ErrResetInputMissing
	}
	if err := security.ValidatePassword(password); err != nil {
		return ErrInvalidPassword
	}

	claims, err := s.tokens.VerifyResetToken(strings.TrimSpace(token))
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.log.InfoContext(ctx, "password reset", "user_id", u.ID)
	return nil
}
