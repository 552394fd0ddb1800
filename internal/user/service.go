package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"github.com/samely/samely/internal/validate"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// birthDateLayouts are tried in order when parsing SignupInput.BirthDate.
var birthDateLayouts = []string{"2006-01-02", time.RFC3339}

// Options tunes session handling.
type Options struct {
	SessionTTL time.Duration
	CacheSize  int           // session lookups cached in memory; 0 disables the cache
	CacheTTL   time.Duration // how long a cached lookup is trusted
}

// Service implements account and session operations.
type Service struct {
	repo       Repository
	sessionTTL time.Duration
	cache      *expirable.LRU[string, cachedSession]
	now        func() time.Time
}

// cachedSession is a resolved session lookup. The entry is only trusted until
// the session itself expires, however long the cache keeps it.
type cachedSession struct {
	user      *User
	expiresAt time.Time
}

// NewService creates a user service over repo.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:       repo,
		sessionTTL: opts.SessionTTL,
		now:        time.Now,
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 7 * 24 * time.Hour
	}
	if opts.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, cachedSession](opts.CacheSize, nil, opts.CacheTTL)
	}
	return s
}

// SetClock replaces the time source used for session lifetimes.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	birthDate, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, validate.Errors{"birthDate": "birthDate must be a date (YYYY-MM-DD)"}
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		BirthDate:    birthDate,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and opens a session. It returns the plaintext
// token, which is never stored.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !CheckPassword(u, password) {
		return "", nil, ErrInvalidCredentials
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(b)

	now := s.now()
	sess := &Session{
		TokenHash: hashToken(token),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	hash := hashToken(token)
	now := s.now()
	if s.cache != nil {
		if c, ok := s.cache.Get(hash); ok {
			if now.Before(c.expiresAt) {
				return c.user, nil
			}
			s.cache.Remove(hash)
			return nil, ErrNotFound
		}
	}
	u, expiresAt, err := s.repo.GetSessionUser(ctx, hash, now)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(hash, cachedSession{user: u, expiresAt: expiresAt})
	}
	return u, nil
}

// Logout ends the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) error {
	hash := hashToken(token)
	if s.cache != nil {
		s.cache.Remove(hash)
	}
	return s.repo.DeleteSession(ctx, hash)
}

// Profile returns the user with its computed reference lists.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	refs, err := s.repo.Refs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Refs: *refs}, nil
}

// GetByID returns the user with the given id.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail returns the user with the given email, ignoring case.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

// CleanExpiredSessions purges sessions past their expiry.
func (s *Service) CleanExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.CleanExpiredSessions(ctx, s.now())
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseBirthDate(s string) (time.Time, error) {
	var err error
	for _, layout := range birthDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
