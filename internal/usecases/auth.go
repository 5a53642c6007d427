package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/whitetriangle/backend/internal/core/ports"
	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/usecases/mocked"
	"github.com/sand/whitetriangle/backend/internal/usecases/repository"
)

var (
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidCode       = errors.New("verification code must be 6 digits")
	ErrChallengeNotFound = repository.ErrChallengeNotFound
	ErrCurrentSession    = errors.New("the current session cannot be revoked")
	ErrSessionNotActive  = errors.New("session is no longer active")
	ErrUnauthenticated   = errors.New("authentication required")
)

type UsersRepository interface {
	SaveUser(ctx context.Context, user *entities.User) error
	FindUser(ctx context.Context, userID string) (*entities.User, error)
	UpdateUser(ctx context.Context, userID string, fn func(u *entities.User) error) (*entities.User, error)
	DeleteUser(ctx context.Context, userID string) error
	SaveChallenge(ctx context.Context, challenge repository.LoginChallenge) error
	TakeChallenge(ctx context.Context, challengeID string, now time.Time) (repository.LoginChallenge, error)
}

var _ ports.AuthService = (*AuthService)(nil)

// AuthService implements the demo login flows. Identity is asserted by the
// client and never verified: this is a placeholder for a real trust boundary.
type AuthService struct {
	logger       *slog.Logger
	users        UsersRepository
	tokens       *TokenIssuer
	challengeTTL time.Duration
	now          func() time.Time
}

func NewAuthService(logger *slog.Logger, users UsersRepository, tokens *TokenIssuer, challengeTTL time.Duration) *AuthService {
	return &AuthService{
		logger:       logger,
		users:        users,
		tokens:       tokens,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// Login is the single-step flow: any address containing "@" signs in, and
// addresses mentioning "admin" get the ADMIN role.
func (s *AuthService) Login(ctx context.Context, email string, client entities.ClientInfo) (*entities.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	return s.materialize(ctx, email, client)
}

// StartLogin opens the email + OTP flow and returns the challenge id the
// code must be submitted against.
func (s *AuthService) StartLogin(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	challenge := repository.LoginChallenge{
		ID:        uuid.NewString(),
		Email:     email,
		ExpiresAt: s.now().Add(s.challengeTTL),
	}
	if err = s.users.SaveChallenge(ctx, challenge); err != nil {
		return "", fmt.Errorf("failed to save login challenge: %w", err)
	}

	s.logger.InfoContext(ctx, "Login challenge issued", "challenge_id", challenge.ID, "email", email)
	return challenge.ID, nil
}

// VerifyLogin completes the OTP flow. Any 6-digit code is accepted.
func (s *AuthService) VerifyLogin(ctx context.Context, challengeID, code string, client entities.ClientInfo) (*entities.User, string, error) {
	if !isOTPCode(code) {
		return nil, "", ErrInvalidCode
	}

	challenge, err := s.users.TakeChallenge(ctx, challengeID, s.now())
	if err != nil {
		return nil, "", err
	}

	return s.materialize(ctx, challenge.Email, client)
}

// Authenticate resolves an access token to its user and session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*entities.User, string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.FindUser(ctx, claims.Subject)
	if errors.Is(err, entities.ErrUserNotFound) {
		return nil, "", ErrInvalidToken
	}
	if err != nil {
		return nil, "", err
	}

	if !hasSession(user, claims.SessionID) {
		return nil, "", ErrSessionNotActive
	}
	return user, claims.SessionID, nil
}

// Logout drops the session the token was issued for. A user left without a
// current session has no way back in and is removed.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	user, err := s.users.UpdateUser(ctx, userID, func(u *entities.User) error {
		u.ActiveSessions = removeSession(u.ActiveSessions, sessionID)
		return nil
	})
	if err != nil {
		return err
	}

	if _, ok := user.CurrentSession(); !ok {
		if err = s.users.DeleteUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to remove user: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "User logged out", "user_id", userID, "session_id", sessionID)
	return nil
}

func (s *AuthService) Toggle2FA(ctx context.Context, userID string) (*entities.User, error) {
	user, err := s.users.UpdateUser(ctx, userID, func(u *entities.User) error {
		u.Is2FAEnabled = !u.Is2FAEnabled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "2FA toggled", "user_id", userID, "enabled", user.Is2FAEnabled)
	return user, nil
}

// RevokeSession removes one non-current session. Unknown ids are a no-op.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) (*entities.User, error) {
	user, err := s.users.UpdateUser(ctx, userID, func(u *entities.User) error {
		for _, session := range u.ActiveSessions {
			if session.ID == sessionID && session.IsCurrent {
				return ErrCurrentSession
			}
		}
		u.ActiveSessions = removeSession(u.ActiveSessions, sessionID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session revoked", "user_id", userID, "session_id", sessionID)
	return user, nil
}

func (s *AuthService) materialize(ctx context.Context, email string, client entities.ClientInfo) (*entities.User, string, error) {
	now := s.now()
	sessionID := uuid.NewString()

	role := entities.RoleUser
	if strings.Contains(email, "admin") {
		role = entities.RoleAdmin
	}

	user := &entities.User{
		ID:             uuid.NewString(),
		Email:          email,
		Role:           role,
		Balance:        decimal.NewFromInt(ports.DemoStartingBalance),
		LoginHistory:   mocked.LoginHistory(client, now),
		ActiveSessions: mocked.ActiveSessions(sessionID, client, now),
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.tokens.Issue(user, sessionID)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "User signed in", "user_id", user.ID, "email", email, "role", role, "ip", client.IP)
	return user, token, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func isOTPCode(code string) bool {
	if len(code) != ports.OTPCodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func hasSession(user *entities.User, sessionID string) bool {
	for _, session := range user.ActiveSessions {
		if session.ID == sessionID {
			return true
		}
	}
	return false
}

func removeSession(sessions []entities.ActiveSession, sessionID string) []entities.ActiveSession {
	kept := sessions[:0]
	for _, session := range sessions {
		if session.ID != sessionID {
			kept = append(kept, session)
		}
	}
	return kept
}
