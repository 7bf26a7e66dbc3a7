package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/docdirectory/internal/auth"
	"github.com/geocoder89/docdirectory/internal/domain/user"
	"github.com/geocoder89/docdirectory/internal/notifications"
	"github.com/geocoder89/docdirectory/internal/security"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[int64]user.User
	nextID int64
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]user.User)}
}

func (m *memUsers) Create(_ context.Context, u user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return user.User{}, user.ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.IsVerified = true
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

type fakeMailer struct {
	verifyFn func(ctx context.Context, in notifications.EmailInput) error
	resetFn  func(ctx context.Context, in notifications.EmailInput) error

	verifications []notifications.EmailInput
	resets        []notifications.EmailInput
}

func (f *fakeMailer) SendVerificationEmail(ctx context.Context, in notifications.EmailInput) error {
	f.verifications = append(f.verifications, in)
	if f.verifyFn != nil {
		return f.verifyFn(ctx, in)
	}
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, in notifications.EmailInput) error {
	f.resets = append(f.resets, in)
	if f.resetFn != nil {
		return f.resetFn(ctx, in)
	}
	return nil
}

func newTestAccounts() (*AccountService, *memUsers, *fakeMailer, *auth.Manager) {
	users := newMemUsers()
	mailer := &fakeMailer{}
	tokens := auth.NewManager("test-secret", time.Hour, time.Hour, 15*time.Minute)
	return NewAccountService(users, tokens, mailer, nil), users, mailer, tokens
}

func registerInput() RegisterInput {
	return RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     "555-0100",
		Email:     "  Ada@Example.COM ",
		Password:  "secret1",
	}
}

func TestRegister_CreatesUnverifiedUserAndMails(t *testing.T) {
	svc, users, mailer, _ := newTestAccounts()

	u, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if u.Email != "ada@example.com" || u.IsVerified {
		t.Fatalf("unexpected user %+v", u)
	}

	stored, _ := users.GetByID(context.Background(), u.ID)
	if stored.PasswordHash == "secret1" || security.CheckPassword(stored.PasswordHash, "secret1") != nil {
		t.Fatalf("password not hashed correctly")
	}

	if len(mailer.verifications) != 1 || mailer.verifications[0].Email != "ada@example.com" {
		t.Fatalf("expected one verification mail, got %+v", mailer.verifications)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _, _, _ := newTestAccounts()
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerInput()); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	if _, err := svc.Register(ctx, registerInput()); !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestRegister_MailFailureKeepsUser(t *testing.T) {
	svc, users, mailer, _ := newTestAccounts()
	mailer.verifyFn = func(context.Context, notifications.EmailInput) error { return errors.New("smtp down") }

	u, err := svc.Register(context.Background(), registerInput())
	if !errors.Is(err, ErrMailDelivery) {
		t.Fatalf("got %v, want ErrMailDelivery", err)
	}
	if u.ID == 0 {
		t.Fatalf("user should be returned with its id")
	}
	if _, err := users.GetByEmail(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("user row should remain committed: %v", err)
	}
}

func TestVerifyEmail_Flow(t *testing.T) {
	svc, users, mailer, _ := newTestAccounts()
	ctx := context.Background()

	u, _ := svc.Register(ctx, registerInput())
	token := mailer.verifications[0].Token

	already, err := svc.VerifyEmail(ctx, token)
	if err != nil || already {
		t.Fatalf("first verify = %v, %v", already, err)
	}
	stored, _ := users.GetByID(ctx, u.ID)
	if !stored.IsVerified {
		t.Fatalf("user not marked verified")
	}

	already, err = svc.VerifyEmail(ctx, token)
	if err != nil || !already {
		t.Fatalf("second verify = %v, %v; want already verified", already, err)
	}
}

func TestVerifyEmail_Errors(t *testing.T) {
	svc, _, _, tokens := newTestAccounts()
	ctx := context.Background()

	expired := auth.NewManager("test-secret", time.Hour, -time.Minute, time.Hour)
	expiredTok, _ := expired.GenerateVerifyToken(1)
	accessTok, _ := tokens.GenerateAccessToken(1)
	orphanTok, _ := tokens.GenerateVerifyToken(999)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "  ", ErrVerifyTokenMissing},
		{"expired", expiredTok, ErrVerifyTokenExpired},
		{"garbage", "not-a-jwt", ErrVerifyTokenInvalid},
		{"wrong type", accessTok, ErrVerifyTokenInvalid},
		{"unknown user", orphanTok, user.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.VerifyEmail(ctx, tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, mailer, tokens := newTestAccounts()
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerInput()); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.Login(ctx, "ada@example.com", "secret1"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified login: got %v", err)
	}

	if _, err := svc.VerifyEmail(ctx, mailer.verifications[0].Token); err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}

	_, errWrongPw := svc.Login(ctx, "ada@example.com", "nope")
	_, errUnknown := svc.Login(ctx, "ghost@example.com", "secret1")
	if !errors.Is(errWrongPw, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("wrong password %v and unknown email %v must both be ErrInvalidCredentials", errWrongPw, errUnknown)
	}

	res, err := svc.Login(ctx, " ADA@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	claims, err := tokens.VerifyAccessToken(ctx, res.Token)
	if err != nil || claims.UserID != res.User.ID {
		t.Fatalf("issued token invalid: %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	svc, users, mailer, tokens := newTestAccounts()
	ctx := context.Background()

	u, _ := svc.Register(ctx, registerInput())
	_ = users.MarkVerified(ctx, u.ID)

	if err := svc.ForgotPassword(ctx, " "); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("empty email: got %v", err)
	}
	if err := svc.ForgotPassword(ctx, "ghost@example.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("unknown email: got %v", err)
	}
	if err := svc.ForgotPassword(ctx, "ADA@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	if len(mailer.resets) != 1 {
		t.Fatalf("expected one reset mail")
	}
	resetTok := mailer.resets[0].Token

	verifyTok, _ := tokens.GenerateVerifyToken(u.ID)
	if err := svc.ResetPassword(ctx, verifyTok, "newpass"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("verify token used for reset: got %v", err)
	}
	if err := svc.ResetPassword(ctx, "", "newpass"); !errors.Is(err, ErrResetInputMissing) {
		t.Fatalf("missing token: got %v", err)
	}

	if err := svc.ResetPassword(ctx, resetTok, "newpass"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}

	if _, err := svc.Login(ctx, "ada@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, err := svc.Login(ctx, "ada@example.com", "newpass"); err != nil {
		t.Fatalf("new password login: %v", err)
	}
}

func TestPasswordLengthRejected(t *testing.T) {
	svc, users, _, tokens := newTestAccounts()
	ctx := context.Background()

	for _, pw := range []string{"short", strings.Repeat("p", 80)} {
		in := registerInput()
		in.Password = pw
		if _, err := svc.Register(ctx, in); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("Register(%d bytes): got %v, want ErrInvalidPassword", len(pw), err)
		}
	}
	if _, err := users.GetByEmail(ctx, "ada@example.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("rejected registration must not create a user")
	}

	u, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	tok, _ := tokens.GenerateResetToken(u.ID)
	for _, pw := range []string{"abc", strings.Repeat("p", 73)} {
		if err := svc.ResetPassword(ctx, tok, pw); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("ResetPassword(%d bytes): got %v, want ErrInvalidPassword", len(pw), err)
		}
	}
}

func TestResetPassword_UnknownUser(t *testing.T) {
	svc, _, _, tokens := newTestAccounts()

	tok, _ := tokens.GenerateResetToken(42)
	err := svc.ResetPassword(context.Background(), tok, "whatever")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("got %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestForgotPassword_MailFailure(t *testing.T) {
	svc, _, mailer, _ := newTestAccounts()
	ctx := context.Background()
	_, _ = svc.Register(ctx, registerInput())

	mailer.resetFn = func(context.Context, notifications.EmailInput) error { return errors.New("quota") }

	err := svc.ForgotPassword(ctx, "ada@example.com")
	if !errors.Is(err, ErrMailDelivery) || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("got %v, want wrapped ErrMailDelivery", err)
	}
}
