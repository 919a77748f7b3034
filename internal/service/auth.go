package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/r3hensler/base-client-server/internal/config"
	"github.com/r3hensler/base-client-server/internal/db"
	"github.com/r3hensler/base-client-server/internal/model"
	"github.com/rs/zerolog"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("expired refresh token")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")

	ErrMisconfigured = errors.New("auth config invalid")
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"

	minSecretLength = 32
)

// weakSecretPatterns disqualify a signing secret that was clearly typed by a
// human instead of generated.
var weakSecretPatterns = []string{"secret", "password", "test", "123", "admin", "key"}

// UserStore is the credential store contract. Satisfied by *db.Postgres.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

// TokenLedger is the refresh-token session ledger contract. Satisfied by
// *db.Postgres.
type TokenLedger interface {
	InsertRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldTokenID, userID uuid.UUID, newTokenHash string, newExpiresAt time.Time) error
	RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// TokenPair is what a successful login or refresh hands back to the HTTP
// layer: a signed access token and the raw replacement refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// CookieSettings tells the HTTP layer how to write the two auth cookies.
type CookieSettings struct {
	AccessName    string
	RefreshName   string
	RefreshPath   string
	Domain        string
	Secure        bool
	SameSite      http.SameSite
	AccessMaxAge  int
	RefreshMaxAge int
}

// AuthService orchestrates register/login/refresh/logout over the credential
// store and the session ledger. It holds no mutable state of its own; every
// operation is safe for concurrent callers.
type AuthService struct {
	store         UserStore
	ledger        TokenLedger
	codec         *TokenCodec
	policy        PasswordPolicy
	refreshTTL    time.Duration
	revokeOnReuse bool
	cookies       CookieSettings
	log           zerolog.Logger
}

func NewAuthService(store UserStore, ledger TokenLedger, env string, cfg config.AuthConfig, cookieCfg config.CookieConfig, logger zerolog.Logger) (*AuthService, error) {
	if err := validateSecret(cfg.JWTSecret); err != nil {
		return nil, err
	}

	accessTTL, err := time.ParseDuration(cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}
	refreshTTL, err := time.ParseDuration(cfg.JWTRefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	minPasswordLength, err := strconv.Atoi(cfg.MinPasswordLength)
	if err != nil || minPasswordLength < 1 {
		return nil, fmt.Errorf("%w: invalid AUTH_MIN_PASSWORD_LENGTH", ErrMisconfigured)
	}
	requireComplexity, err := strconv.ParseBool(cfg.RequireComplexity)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_REQUIRE_COMPLEXITY", ErrMisconfigured)
	}
	revokeOnReuse, err := strconv.ParseBool(cfg.RevokeOnReuse)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_REVOKE_ON_REUSE", ErrMisconfigured)
	}

	cookies, err := buildCookieSettings(env, cookieCfg, accessTTL, refreshTTL)
	if err != nil {
		return nil, err
	}

	codec, err := NewTokenCodec([]byte(cfg.JWTSecret), cfg.Issuer, cfg.Audience, accessTTL)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		store:         store,
		ledger:        ledger,
		codec:         codec,
		policy:        PasswordPolicy{MinLength: minPasswordLength, RequireComplexity: requireComplexity},
		refreshTTL:    refreshTTL,
		revokeOnReuse: revokeOnReuse,
		cookies:       cookies,
		log:           logger.With().Str("component", "auth").Logger(),
	}, nil
}

func (s *AuthService) Cookies() CookieSettings { return s.cookies }

func (s *AuthService) Codec() *TokenCodec { return s.codec }

// Register creates a new account. No tokens are issued; the client logs in
// afterwards.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)

	if err := s.policy.Validate(password); err != nil {
		return nil, err
	}

	hash, err := s.codec.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

// Login verifies credentials and issues a token pair. A lookup miss still
// pays for one bcrypt comparison so the caller cannot tell an unknown email
// from a wrong password by timing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *TokenPair, error) {
	email = normalizeEmail(email)

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.codec.VerifyDummyPassword(password)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !s.codec.VerifyPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDeactivated
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh exchanges a live refresh token for a new token pair, consuming the
// presented token. A second exchange of the same token fails: either the
// ledger row is already revoked, or the conditional revoke inside the
// rotation transaction loses the race and aborts.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*model.User, *TokenPair, error) {
	if rawToken == "" {
		return nil, nil, ErrInvalidRefreshToken
	}

	tokenHash := s.codec.HashRefreshToken(rawToken)
	record, err := s.ledger.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.log.Warn().Msg("refresh rejected: unknown token")
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}

	if record.RevokedAt != nil {
		return nil, nil, s.handleReuse(ctx, record)
	}
	if !time.Now().Before(record.ExpiresAt) {
		s.log.Warn().Str("user_id", record.UserID.String()).Msg("refresh rejected: expired token")
		return nil, nil, ErrExpiredRefreshToken
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}

	newRaw, newHash, err := s.codec.NewRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	err = s.ledger.RotateRefreshToken(ctx, record.ID, record.UserID, newHash, time.Now().Add(s.refreshTTL))
	if err != nil {
		if errors.Is(err, db.ErrAlreadyConsumed) {
			return nil, nil, s.handleReuse(ctx, record)
		}
		return nil, nil, err
	}

	accessToken, err := s.codec.IssueAccessToken(user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRaw,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. Unknown, expired, or
// already-revoked tokens are a no-op so logout never fails on stale cookies.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return s.ledger.RevokeRefreshTokenByHash(ctx, s.codec.HashRefreshToken(rawToken))
}

// Authenticate verifies an access token and loads its subject. A valid
// signature is not enough: the user must still exist and be active, which
// covers deactivation after the token was minted.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	userID, err := s.codec.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// handleReuse fires when a rotated or revoked token is presented again. The
// caller sees a plain invalid-token error; the log keeps the distinction, and
// when escalation is enabled every live token of the user is revoked since
// reuse is strong evidence the lineage was stolen.
func (s *AuthService) handleReuse(ctx context.Context, record *model.RefreshToken) error {
	event := s.log.Warn().Str("user_id", record.UserID.String())
	if !s.revokeOnReuse {
		event.Msg("refresh rejected: token reuse detected")
		return ErrInvalidRefreshToken
	}

	revoked, err := s.ledger.RevokeAllForUser(ctx, record.UserID)
	if err != nil {
		event.Err(err).Msg("refresh rejected: token reuse detected, revoke-all failed")
		return ErrInvalidRefreshToken
	}
	event.Int64("revoked", revoked).Msg("refresh rejected: token reuse detected, session family revoked")
	return ErrInvalidRefreshToken
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*TokenPair, error) {
	accessToken, err := s.codec.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	raw, hash, err := s.codec.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	if err := s.ledger.InsertRefreshToken(ctx, user.ID, hash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: raw,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: JWT_SECRET_KEY is required", ErrMisconfigured)
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("%w: JWT_SECRET_KEY must be at least %d characters", ErrMisconfigured, minSecretLength)
	}
	lower := strings.ToLower(secret)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: JWT_SECRET_KEY contains common weak pattern %q", ErrMisconfigured, pattern)
		}
	}
	return nil
}

func buildCookieSettings(env string, cfg config.CookieConfig, accessTTL, refreshTTL time.Duration) (CookieSettings, error) {
	secure, err := strconv.ParseBool(cfg.Secure)
	if err != nil {
		return CookieSettings{}, fmt.Errorf("%w: invalid COOKIE_SECURE", ErrMisconfigured)
	}
	if !secure && (env == "production" || env == "staging") {
		return CookieSettings{}, fmt.Errorf("%w: COOKIE_SECURE=false is not allowed in %s", ErrMisconfigured, env)
	}

	sameSite, err := parseSameSite(cfg.SameSite)
	if err != nil {
		return CookieSettings{}, err
	}
	if sameSite == http.SameSiteNoneMode && !secure {
		return CookieSettings{}, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	return CookieSettings{
		AccessName:    accessCookieName,
		RefreshName:   refreshCookieName,
		RefreshPath:   refreshCookiePath,
		Domain:        cfg.Domain,
		Secure:        secure,
		SameSite:      sameSite,
		AccessMaxAge:  int(accessTTL.Seconds()),
		RefreshMaxAge: int(refreshTTL.Seconds()),
	}, nil
}

func parseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: invalid COOKIE_SAMESITE", ErrMisconfigured)
	}
}
