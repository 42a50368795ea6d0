// nonce.go issues and verifies the anti-forgery tokens that guard the
// connection-test action.

package devpulse

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultNonceTTL is how long an issued nonce stays valid.
const DefaultNonceTTL = 12 * time.Hour

// nonceClaims binds a token to one action and one subject.
type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// NonceManager signs nonces with an HMAC key.
type NonceManager struct {
	key    []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewNonceManager creates a manager. A ttl of zero selects DefaultNonceTTL.
func NewNonceManager(secret []byte, ttl time.Duration) (*NonceManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("nonce secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceManager{
		key: secret,
		ttl: ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(5*time.Second),
			jwt.WithExpirationRequired(),
		),
		now: time.Now,
	}, nil
}

// Create issues a nonce for action on behalf of subject.
func (m *NonceManager) Create(action, subject string) (string, error) {
	now := m.now()
	claims := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign nonce: %w", err)
	}
	return token, nil
}

// Verify reports whether token is an unexpired nonce issued for action and subject.
func (m *NonceManager) Verify(token, action, subject string) bool {
	if m == nil || token == "" {
		return false
	}
	var claims nonceClaims
	parsed, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Action == action && claims.Subject == subject
}
