// Package auth implements password hashing and the access/refresh token
// pair the HTTP API requires, including the single-active-session
// invariant: logging in or refreshing invalidates any token issued
// earlier for the same player.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

const (
	issuer   = "remud"
	audience = "remud"

	accessTTL  = time.Hour
	refreshTTL = 365 * 24 * time.Hour

	ScopeAccess  = "access"
	ScopeRefresh = "refresh"
	ScopeScripts = "scripts"
)

var (
	ErrInvalidToken        = errors.New("auth: invalid or expired token")
	ErrInadequateScope     = errors.New("auth: token missing required scope")
	ErrTokenSuperseded     = errors.New("auth: token has been superseded by a later login")
	ErrAuthenticationError = errors.New("auth: invalid credentials")
)

// argon2Params are the memory-hard KDF parameters for password hashing.
// Time/memory/threads follow the argon2id recommendation for an
// interactive login path: expensive enough to resist offline cracking,
// cheap enough not to stall a login.
type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

var defaultArgon2Params = argon2Params{
	time:    1,
	memory:  64 * 1024,
	threads: 4,
	keyLen:  32,
	saltLen: 16,
}

// HashPassword derives an argon2id hash encoded as
// "$argon2id$v=19$m=...,t=...,p=...$salt$hash".
func HashPassword(password string) (string, error) {
	p := defaultArgon2Params
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
	return encoded, nil
}

// VerifyPassword checks password against an argon2id-encoded hash
// produced by HashPassword, in constant time.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("auth: unrecognized hash format")
	}
	var memory uint32
	var iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("auth: parse hash params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Claims carries the scopes claim alongside registered claims; the
// subject holds the player name.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims include scope.
func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenPair is an issued access/refresh token along with the issued-at
// instants a SessionStore must record to enforce single-session.
type TokenPair struct {
	AccessToken        string
	AccessIssuedAt     time.Time
	RefreshToken        string
	RefreshIssuedAt     time.Time
}

// Manager issues and verifies token pairs.
type Manager struct {
	secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

// Issue mints a fresh access/refresh pair for player. Immortal players
// additionally receive the "scripts" scope on the access token, granting
// access to the scripting CRUD endpoints.
func (m *Manager) Issue(player string, immortal bool) (TokenPair, error) {
	// Truncated to whole seconds: JWT numeric dates round-trip through
	// JSON as integer seconds, so the issue time recorded here must match
	// what a later Verify() call decodes, not the sub-second Go clock.
	now := time.Now().Truncate(time.Second)

	accessScopes := []string{ScopeAccess}
	if immortal {
		accessScopes = append(accessScopes, ScopeScripts)
	}
	access, accessIssued, err := m.sign(player, accessScopes, now, accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}

	refresh, refreshIssued, err := m.sign(player, []string{ScopeRefresh}, now, refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:     access,
		AccessIssuedAt:  accessIssued,
		RefreshToken:    refresh,
		RefreshIssuedAt: refreshIssued,
	}, nil
}

func (m *Manager) sign(player string, scopes []string, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   player,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

// Verify parses and validates a token's signature, issuer and audience,
// returning its claims. It does not check single-session validity —
// callers compare IssuedAt against the SessionStore themselves, since
// that check differs for access vs. refresh tokens.
func (m *Manager) Verify(tokenStr string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

// SessionStore is the persistence-layer contract auth needs: the last
// issued-at instant recorded per player for each token kind, so a newer
// login invalidates tokens minted before it.
type SessionStore interface {
	AccessIssuedAt(player string) (time.Time, bool, error)
	RefreshIssuedAt(player string) (time.Time, bool, error)
	RegisterTokens(player string, accessIssuedAt, refreshIssuedAt time.Time) error
	Logout(player string) error
}

// VerifyAccess validates an access token end to end: signature, issuer/
// audience, the "access" scope, any additionally required scopes, and the
// single-active-session invariant against store. A mismatch forces a
// logout of the player (both stored issue times are cleared) and returns
// ErrTokenSuperseded.
func VerifyAccess(m *Manager, store SessionStore, tokenStr string, requiredScopes ...string) (player string, err error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return "", err
	}
	if !claims.HasScope(ScopeAccess) {
		return "", ErrInadequateScope
	}
	for _, scope := range requiredScopes {
		if !claims.HasScope(scope) {
			return "", ErrInadequateScope
		}
	}
	player = claims.Subject
	issued, ok, err := store.AccessIssuedAt(player)
	if err != nil {
		return "", fmt.Errorf("auth: look up access issue time: %w", err)
	}
	if !ok || !issued.Equal(claims.IssuedAt.Time) {
		_ = store.Logout(player)
		return "", ErrTokenSuperseded
	}
	return player, nil
}

// Refresh validates a refresh token against store's single-session
// invariant and, if valid, mints and registers a new token pair,
// superseding the one just consumed.
func Refresh(m *Manager, store SessionStore, refreshToken string, immortal bool) (TokenPair, error) {
	claims, err := m.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !claims.HasScope(ScopeRefresh) {
		return TokenPair{}, ErrInadequateScope
	}
	player := claims.Subject
	issued, ok, err := store.RefreshIssuedAt(player)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: look up refresh issue time: %w", err)
	}
	if !ok || !issued.Equal(claims.IssuedAt.Time) {
		_ = store.Logout(player)
		return TokenPair{}, ErrTokenSuperseded
	}
	pair, err := m.Issue(player, immortal)
	if err != nil {
		return TokenPair{}, err
	}
	if err := store.RegisterTokens(player, pair.AccessIssuedAt, pair.RefreshIssuedAt); err != nil {
		return TokenPair{}, fmt.Errorf("auth: register tokens: %w", err)
	}
	return pair, nil
}

// Login verifies credentials, mints a fresh token pair, and registers it
// as the player's single active session, superseding whatever was issued
// before.
func Login(m *Manager, store SessionStore, player, passwordHash, password string, immortal bool) (TokenPair, error) {
	ok, err := VerifyPassword(passwordHash, password)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: verify password: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrAuthenticationError
	}
	pair, err := m.Issue(player, immortal)
	if err != nil {
		return TokenPair{}, err
	}
	if err := store.RegisterTokens(player, pair.AccessIssuedAt, pair.RefreshIssuedAt); err != nil {
		return TokenPair{}, fmt.Errorf("auth: register tokens: %w", err)
	}
	return pair, nil
}
