package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

var ErrChallengeNotFound = errors.New("login challenge not found or expired")

// LoginChallenge is the pending first step of the email + OTP login.
type LoginChallenge struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

// UsersRepository holds mock accounts and pending login challenges in memory.
// Users live for userTTL after sign-in, matching the access token lifetime.
// Challenges live until their ExpiresAt. Expired entries are swept on every write.
// Users are stored by value and copied out so callers never share slices.
type UsersRepository struct {
	logger  *slog.Logger
	userTTL time.Duration

	// serialises read-modify-write cycles on users
	mu         sync.Mutex
	users      *ttlcache.Cache[string, entities.User]
	challenges *ttlcache.Cache[string, LoginChallenge]
}

func NewUsersRepository(logger *slog.Logger, userTTL time.Duration) *UsersRepository {
	return &UsersRepository{
		logger:  logger,
		userTTL: userTTL,
		users: ttlcache.New[string, entities.User](
			ttlcache.WithTTL[string, entities.User](userTTL),
			ttlcache.WithDisableTouchOnHit[string, entities.User](),
		),
		challenges: ttlcache.New[string, LoginChallenge](
			ttlcache.WithDisableTouchOnHit[string, LoginChallenge](),
		),
	}
}

func (r *UsersRepository) SaveUser(_ context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users.DeleteExpired()
	r.users.Set(user.ID, cloneUser(*user), ttlcache.DefaultTTL)
	return nil
}

func (r *UsersRepository) FindUser(_ context.Context, userID string) (*entities.User, error) {
	item := r.users.Get(userID)
	if item == nil {
		return nil, entities.ErrUserNotFound
	}
	clone := cloneUser(item.Value())
	return &clone, nil
}

// UpdateUser runs fn on a copy of the stored user and saves the result if fn
// succeeds. The user keeps its original expiry.
func (r *UsersRepository) UpdateUser(_ context.Context, userID string, fn func(u *entities.User) error) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.users.Get(userID)
	if item == nil {
		return nil, entities.ErrUserNotFound
	}
	remaining := time.Until(item.ExpiresAt())
	if remaining <= 0 {
		return nil, entities.ErrUserNotFound
	}

	clone := cloneUser(item.Value())
	if err := fn(&clone); err != nil {
		return nil, err
	}
	r.users.Set(userID, clone, remaining)

	out := cloneUser(clone)
	return &out, nil
}

func (r *UsersRepository) DeleteUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users.Delete(userID)
	r.logger.Debug("User removed", "user_id", userID)
	return nil
}

func (r *UsersRepository) SaveChallenge(_ context.Context, challenge LoginChallenge) error {
	r.challenges.DeleteExpired()

	// a non-positive ttl would never expire
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		r.logger.Debug("Login challenge already expired, not stored", "challenge_id", challenge.ID)
		return nil
	}

	r.challenges.Set(challenge.ID, challenge, ttl)
	return nil
}

// TakeChallenge removes and returns a challenge. Expired challenges are dropped.
func (r *UsersRepository) TakeChallenge(_ context.Context, challengeID string, now time.Time) (LoginChallenge, error) {
	item, ok := r.challenges.GetAndDelete(challengeID)
	if !ok || item == nil {
		return LoginChallenge{}, ErrChallengeNotFound
	}

	c := item.Value()
	if now.After(c.ExpiresAt) {
		r.logger.Debug("Login challenge expired", "challenge_id", challengeID)
		return LoginChallenge{}, ErrChallengeNotFound
	}
	return c, nil
}

// Len reports how many users and challenges are held, expired ones included
// until the next sweep.
func (r *UsersRepository) Len() (users, challenges int) {
	return r.users.Len(), r.challenges.Len()
}

func cloneUser(u entities.User) entities.User {
	u.LoginHistory = append([]entities.LoginEvent(nil), u.LoginHistory...)
	u.ActiveSessions = append([]entities.ActiveSession(nil), u.ActiveSessions...)
	return u
}
