package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned when an access token fails verification for any
// reason: bad signature, wrong algorithm, expired, wrong issuer or audience,
// or a token that is not typed "access".
var ErrInvalidToken = errors.New("invalid token")

const tokenTypeAccess = "access"

type accessClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies the two credential kinds: signed stateless
// access tokens and opaque refresh tokens tracked server-side by digest.
type TokenCodec struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration

	// dummyHash is verified against on login for unknown emails so the
	// failure takes the same wall-clock time as a wrong password.
	dummyHash []byte
}

func NewTokenCodec(secret []byte, issuer, audience string, accessTTL time.Duration) (*TokenCodec, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &TokenCodec{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		dummyHash: dummy,
	}, nil
}

func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// IssueAccessToken signs a short-lived HS256 token for the given subject.
func (c *TokenCodec) IssueAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := accessClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates signature, expiry, issuer, audience, and the
// type discriminator, and returns the subject user id.
func (c *TokenCodec) VerifyAccessToken(tokenStr string) (uuid.UUID, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return c.secret, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// NewRefreshToken returns a fresh opaque token and its storage digest. Only
// the digest is ever persisted; the raw value exists server-side for the
// lifetime of the issuing request.
func (c *TokenCodec) NewRefreshToken() (raw string, hash string, err error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, c.HashRefreshToken(raw), nil
}

// HashRefreshToken is the one-way lookup digest for stored refresh tokens.
func (c *TokenCodec) HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (c *TokenCodec) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (c *TokenCodec) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummyPassword burns a bcrypt comparison against a fixed hash. Called
// on login when the email does not exist, so the two failure paths are
// indistinguishable by latency.
func (c *TokenCodec) VerifyDummyPassword(password string) {
	_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
}
