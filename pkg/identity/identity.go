// Package identity implements email/password accounts with one-time email
// codes and opaque session tokens.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/store"
)

// Purpose distinguishes one-time codes.
type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

func (p Purpose) subject() string {
	if p == PurposeReset {
		return "Reset your Nava password"
	}
	return "Verify your Nava email"
}

func (p Purpose) lead() string {
	if p == PurposeReset {
		return "Use this code to reset your password:"
	}
	return "Welcome to Nava! Your verification code is:"
}

const (
	// CodeTTL is how long a one-time code stays valid.
	CodeTTL = 15 * time.Minute
	// DefaultSessionTTL is how long a session token stays valid.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
)

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	CreateAccount(ctx context.Context, a store.Account) error
	AccountByEmail(ctx context.Context, email string) (*store.Account, error)
	AccountByID(ctx context.Context, id string) (*store.Account, error)
	MarkVerified(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, hash string) error
	PutCode(ctx context.Context, c store.Code) error
	GetCode(ctx context.Context, email, purpose string) (*store.Code, error)
	DeleteCode(ctx context.Context, email, purpose string) error
	CreateSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error
	SessionAccount(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteSessions(ctx context.Context, accountID string) error
}

// User is the public view of an account.
type User = types.Account

func userOf(a *store.Account) User {
	return User{ID: a.ID, Email: a.Email, Name: a.Name, Verified: a.Verified}
}

// Config wires a Service.
type Config struct {
	Repo       Repository
	Mailer     Mailer
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Logger     *slog.Logger
}

// Service is the identity collaborator.
type Service struct {
	repo   Repository
	mailer Mailer
	ttl    time.Duration
	cost   int
	log    *slog.Logger

	now  func() time.Time
	rand io.Reader
}

// New returns a Service. A nil Mailer falls back to LogMailer.
func New(cfg Config) (*Service, error) {
	if cfg.Repo == nil {
		return nil, core.NewAuthError(core.AuthConfig, "identity repository is not configured")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = LogMailer{Logger: log}
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repo:   cfg.Repo,
		mailer: mailer,
		ttl:    ttl,
		cost:   cost,
		log:    log.With("component", "identity"),
		now:    time.Now,
		rand:   rand.Reader,
	}, nil
}

func errInvalidCredentials() error {
	return core.NewAuthError(core.AuthInvalidCredentials, "Invalid email or password.")
}

func errNotVerified() error {
	return core.NewAuthError(core.AuthEmailNotVerified, "Please verify your email before signing in.")
}

func errEmailInUse() error {
	return core.NewAuthError(core.AuthEmailInUse, "An account with this email already exists.")
}

func errInvalidCode() error {
	return core.NewAuthError(core.AuthInvalidCode, "The code is invalid or has expired.")
}

func errSessionExpired() error {
	return core.NewAuthError(core.AuthSessionExpired, "Your session has expired. Please sign in again.")
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", core.NewInvalidRequestErrorWithParam("email is invalid", "email")
	}
	return email, nil
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return core.NewAuthError(core.AuthWeakPassword, fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength))
	}
	return nil
}

// SignUp creates an unverified account and emails a verification code.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if err := checkPassword(password); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	a := store.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return User{}, errEmailInUse()
		}
		return User{}, err
	}
	if err := s.issueCode(ctx, email, PurposeVerify); err != nil {
		s.log.Error("send verification code failed", "error", err)
	}
	s.log.Info("account created", "account_id", a.ID)
	return userOf(&a), nil
}

// SignIn checks credentials and returns a new session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", User{}, errInvalidCredentials()
	}
	a, err := s.repo.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", User{}, errInvalidCredentials()
	}
	if err != nil {
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return "", User{}, errInvalidCredentials()
	}
	if !a.Verified {
		return "", User{}, errNotVerified()
	}
	token, err := s.newToken()
	if err != nil {
		return "", User{}, err
	}
	if err := s.repo.CreateSession(ctx, hashToken(token), a.ID, s.now().Add(s.ttl)); err != nil {
		return "", User{}, err
	}
	return token, userOf(a), nil
}

// SignOut revokes token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, hashToken(token))
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, errSessionExpired()
	}
	id, err := s.repo.SessionAccount(ctx, hashToken(token), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return User{}, errSessionExpired()
	}
	if err != nil {
		return User{}, err
	}
	a, err := s.repo.AccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, errSessionExpired()
	}
	if err != nil {
		return User{}, err
	}
	return userOf(a), nil
}

// VerifyEmail consumes a verification code.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return errInvalidCode()
	}
	a, err := s.repo.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return errInvalidCode()
	}
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, email, PurposeVerify, code); err != nil {
		return err
	}
	return s.repo.MarkVerified(ctx, a.ID)
}

// ResendVerification issues a fresh verification code for an unverified
// account. Unknown or verified accounts are ignored.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	a, err := s.repo.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if a.Verified {
		return nil
	}
	return s.issueCode(ctx, email, PurposeVerify)
}

// RequestPasswordReset emails a reset code when the account exists. The result
// never reveals whether it does.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	email, err := normalizeEmail(email)
	if err != nil {
		return
	}
	_, err = s.repo.AccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("password reset lookup failed", "error", err)
		}
		return
	}
	if err := s.issueCode(ctx, email, PurposeReset); err != nil {
		s.log.Error("send reset code failed", "error", err)
	}
}

// ResetPassword consumes a reset code, sets the new password and revokes
// existing sessions. A reset also proves ownership of the email.
func (s *Service) ResetPassword(ctx context.Context, email, code, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return errInvalidCode()
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	a, err := s.repo.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return errInvalidCode()
	}
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, email, PurposeReset, code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, a.ID, string(hash)); err != nil {
		return err
	}
	if !a.Verified {
		if err := s.repo.MarkVerified(ctx, a.ID); err != nil {
			return err
		}
	}
	return s.repo.DeleteSessions(ctx, a.ID)
}

func (s *Service) issueCode(ctx context.Context, email string, purpose Purpose) error {
	code, err := s.newCode()
	if err != nil {
		return err
	}
	err = s.repo.PutCode(ctx, store.Code{
		Email:     email,
		Purpose:   string(purpose),
		Hash:      hashToken(code),
		ExpiresAt: s.now().Add(CodeTTL),
	})
	if err != nil {
		return err
	}
	return s.mailer.SendCode(ctx, email, purpose, code)
}

func (s *Service) consumeCode(ctx context.Context, email string, purpose Purpose, code string) error {
	c, err := s.repo.GetCode(ctx, email, string(purpose))
	if errors.Is(err, store.ErrNotFound) {
		return errInvalidCode()
	}
	if err != nil {
		return err
	}
	if !s.now().Before(c.ExpiresAt) {
		return errInvalidCode()
	}
	if subtle.ConstantTimeCompare([]byte(c.Hash), []byte(hashToken(strings.TrimSpace(code)))) != 1 {
		return errInvalidCode()
	}
	return s.repo.DeleteCode(ctx, email, string(purpose))
}

// newCode returns a uniformly random 6-digit code.
func (s *Service) newCode() (string, error) {
	n, err := rand.Int(s.rand, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *Service) newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
