package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or PIN")
	ErrWeakPIN            = errors.New("PIN must be at least 4 digits")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Register creates a customer and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	return s.create(ctx, creds, RoleCustomer)
}

// EnsureManager creates the manager account if the email is not yet taken.
func (s *Service) EnsureManager(ctx context.Context, creds Credentials) (User, error) {
	if existing, err := s.repo.FindByEmail(ctx, creds.Email); err == nil {
		return existing, nil
	}
	user, err := s.create(ctx, creds, RoleManager)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("manager account created", zap.String("user_id", user.ID))
	return user, nil
}

func (s *Service) create(ctx context.Context, creds Credentials, role Role) (User, error) {
	if _, err := mail.ParseAddress(creds.Email); err != nil {
		return User{}, ErrInvalidEmail
	}
	if len(creds.PIN) < 4 {
		return User{}, ErrWeakPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash pin: %w", err)
	}

	user := User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(creds.Email),
		Role:      role,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, creds.Email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// ContactAddress resolves the address notifications for a user are sent to.
func (s *Service) ContactAddress(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
