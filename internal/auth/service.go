package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventflow/internal/logger"
	"eventflow/internal/models"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInUse       = errors.New("provider account already linked to another user")
	ErrLastAccount        = errors.New("cannot unlink the only sign-in method")
	ErrSessionInvalid     = errors.New("session expired or revoked")
	ErrUserNotFound       = errors.New("user not found")
)

type DBLayer interface {
	CreateUser(user models.User) error
	GetUserByID(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetVerifiedUserByEmail(email string) (*models.User, error)
	UpdateUser(user models.User) error
	CreateAccount(account models.Account) error
	GetAccount(provider, providerAccountID string) (*models.Account, error)
	ListAccountsByUser(userID string) ([]models.Account, error)
	DeleteAccount(userID, provider string) error
	CreateSession(session models.Session) error
	GetSessionByID(id string) (*models.Session, error)
	RevokeSession(id string) error
	RevokeAllSessions(userID string) ([]string, error)
}

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*CachedSession, error)
	Put(ctx context.Context, sessionID, userID string, expiresAt time.Time) error
	Drop(ctx context.Context, sessionID string) error
}

type Service struct {
	DB         DBLayer
	Sessions   SessionStore
	JWTSecret  []byte
	SessionTTL time.Duration
	Logger     *logger.Logger
}

func NewService(db DBLayer, sessions SessionStore, jwtSecret []byte, sessionTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		DB:         db,
		Sessions:   sessions,
		JWTSecret:  jwtSecret,
		SessionTTL: sessionTTL,
		Logger:     log,
	}
}

// PlaceholderEmail synthesizes an address for provider identities without a
// usable email. Placeholder addresses never match during account linking.
func PlaceholderEmail(provider, providerAccountID string) string {
	return fmt.Sprintf("%s-%s@%s", provider, providerAccountID, models.PlaceholderEmailDomain)
}

// IsPlaceholderEmail reports whether the address was synthesized by us.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(email, "@"+models.PlaceholderEmailDomain)
}

// ---------------- PASSWORD PROVIDER ----------------

func (s *Service) RegisterPassword(ctx context.Context, email, password, fullName, userAgent string) (*models.TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.DB.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.DB.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := models.Account{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		Provider:          models.ProviderPassword,
		ProviderAccountID: user.ID,
		CreatedAt:         time.Now(),
	}
	if err := s.DB.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("failed to create password account: %w", err)
	}

	s.Logger.LogAuth("REGISTER", fmt.Sprintf("user %s registered with password", user.ID))
	return s.openSession(ctx, &user, userAgent)
}

func (s *Service) LoginPassword(ctx context.Context, email, password, userAgent string) (*models.TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.DB.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.PasswordHash == "" || !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	s.Logger.LogAuth("LOGIN", fmt.Sprintf("user %s logged in with password", user.ID))
	return s.openSession(ctx, user, userAgent)
}

// ---------------- OAUTH PROVIDERS ----------------

// LoginWithProvider applies the account-linking rules to an OAuth callback
// profile and opens a session:
//  1. An account row already links (provider, id) -> that user logs in.
//  2. The provider supplied a verified email held by an existing user whose
//     own email is verified -> link a new account to that user.
//  3. Otherwise a fresh user is created, with a placeholder email when the
//     provider gave none.
func (s *Service) LoginWithProvider(ctx context.Context, profile *models.ProviderProfile, userAgent string) (*models.TokenResponse, error) {
	account, err := s.DB.GetAccount(profile.Provider, profile.ProviderAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if account != nil {
		user, err := s.DB.GetUserByID(account.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user %s: %w", account.UserID, err)
		}
		if user == nil {
			return nil, fmt.Errorf("account %s references missing user %s", account.ID, account.UserID)
		}
		if err := s.maybeUpgradeEmail(user, profile); err != nil {
			s.Logger.Warn("AUTH", fmt.Sprintf("failed to upgrade placeholder email for user %s: %v", user.ID, err))
		}
		s.Logger.LogAuth("LOGIN", fmt.Sprintf("user %s logged in via %s", user.ID, profile.Provider))
		return s.openSession(ctx, user, userAgent)
	}

	if profile.Email != "" && profile.EmailVerified {
		// Only a user whose stored email is itself verified can be a link
		// target, or an unverified pre-registration could capture the login.
		email := strings.ToLower(profile.Email)
		user, err := s.DB.GetVerifiedUserByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user by email: %w", err)
		}
		if user != nil {
			if err := s.linkAccount(user, profile); err != nil {
				return nil, err
			}
			s.Logger.LogAuth("LINK", fmt.Sprintf("linked %s account to user %s by email match", profile.Provider, user.ID))
			return s.openSession(ctx, user, userAgent)
		}
	}

	user, err := s.createUserFromProfile(profile)
	if err != nil {
		return nil, err
	}
	s.Logger.LogAuth("REGISTER", fmt.Sprintf("user %s created via %s", user.ID, profile.Provider))
	return s.openSession(ctx, user, userAgent)
}

// LinkProvider attaches a provider identity to an already logged-in user.
func (s *Service) LinkProvider(userID string, profile *models.ProviderProfile) error {
	existing, err := s.DB.GetAccount(profile.Provider, profile.ProviderAccountID)
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		if existing.UserID == userID {
			return nil // already linked
		}
		return ErrAccountInUse
	}

	user, err := s.DB.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.linkAccount(user, profile); err != nil {
		return err
	}
	s.Logger.LogAuth("LINK", fmt.Sprintf("user %s linked %s account", userID, profile.Provider))
	return nil
}

// UnlinkProvider removes a provider identity; the last one cannot go.
func (s *Service) UnlinkProvider(userID, provider string) error {
	accounts, err := s.DB.ListAccountsByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) <= 1 {
		return ErrLastAccount
	}

	found := false
	for _, a := range accounts {
		if a.Provider == provider {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no %s account linked", provider)
	}

	if err := s.DB.DeleteAccount(userID, provider); err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	s.Logger.LogAuth("UNLINK", fmt.Sprintf("user %s unlinked %s account", userID, provider))
	return nil
}

func (s *Service) ListAccounts(userID string) ([]models.Account, error) {
	return s.DB.ListAccountsByUser(userID)
}

func (s *Service) linkAccount(user *models.User, profile *models.ProviderProfile) error {
	account := models.Account{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		CreatedAt:         time.Now(),
	}
	if err := s.DB.CreateAccount(account); err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	return s.maybeUpgradeEmail(user, profile)
}

// maybeUpgradeEmail replaces a placeholder address once a provider finally
// supplies a verified one, and flips email_verified on exact matches.
func (s *Service) maybeUpgradeEmail(user *models.User, profile *models.ProviderProfile) error {
	if profile.Email == "" || !profile.EmailVerified {
		return nil
	}
	email := strings.ToLower(profile.Email)

	switch {
	case IsPlaceholderEmail(user.Email):
		taken, err := s.DB.GetUserByEmail(email)
		if err != nil {
			return err
		}
		if taken != nil && taken.ID != user.ID {
			return nil // someone else holds the real address; keep placeholder
		}
		user.Email = email
		user.EmailVerified = true
	case user.Email == email && !user.EmailVerified:
		user.EmailVerified = true
	default:
		return nil
	}
	return s.DB.UpdateUser(*user)
}

func (s *Service) createUserFromProfile(profile *models.ProviderProfile) (*models.User, error) {
	email := strings.ToLower(profile.Email)
	if email == "" {
		email = PlaceholderEmail(profile.Provider, profile.ProviderAccountID)
	}

	fullName := profile.FullName
	if fullName == "" {
		fullName = profile.Provider + " user"
	}

	user := models.User{
		ID:            uuid.NewString(),
		Email:         email,
		EmailVerified: profile.EmailVerified,
		FullName:      fullName,
		CreatedAt:     time.Now(),
	}
	if err := s.DB.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := models.Account{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		CreatedAt:         time.Now(),
	}
	if err := s.DB.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &user, nil
}

// ---------------- SESSIONS ----------------

func (s *Service) openSession(ctx context.Context, user *models.User, userAgent string) (*models.TokenResponse, error) {
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(s.SessionTTL),
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.Sessions.Put(ctx, session.ID, user.ID, session.ExpiresAt); err != nil {
		// Cache misses fall back to the DB; log and continue.
		s.Logger.Warn("AUTH", fmt.Sprintf("failed to cache session %s: %v", session.ID, err))
	}

	token, err := IssueToken(s.JWTSecret, user.ID, session.ID, s.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.SessionTTL.Seconds()),
		User:        user,
	}, nil
}

// ValidateSession checks a parsed token against the session cache, falling
// back to the DB and re-warming the cache on a miss.
func (s *Service) ValidateSession(ctx context.Context, claims *SessionClaims) (string, error) {
	cached, err := s.Sessions.Get(ctx, claims.SessionID)
	if err != nil {
		s.Logger.Warn("AUTH", fmt.Sprintf("session cache read failed: %v", err))
	}
	if cached != nil {
		return cached.UserID, nil
	}

	session, err := s.DB.GetSessionByID(claims.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil || !session.Active(time.Now()) {
		return "", ErrSessionInvalid
	}

	if err := s.Sessions.Put(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
		s.Logger.Warn("AUTH", fmt.Sprintf("failed to re-cache session %s: %v", session.ID, err))
	}
	return session.UserID, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.DB.RevokeSession(sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := s.Sessions.Drop(ctx, sessionID); err != nil {
		s.Logger.Warn("AUTH", fmt.Sprintf("failed to drop cached session %s: %v", sessionID, err))
	}
	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	ids, err := s.DB.RevokeAllSessions(userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.Sessions.Drop(ctx, id); err != nil {
			s.Logger.Warn("AUTH", fmt.Sprintf("failed to drop cached session %s: %v", id, err))
		}
	}
	return nil
}

func (s *Service) GetUser(userID string) (*models.User, error) {
	user, err := s.DB.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
