package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/vipclub/access-server/internal/model"
)

var ErrInvalidSession = errors.New("invalid access session")

// SessionTokenManager signs and verifies access session tokens.
type SessionTokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionTokenManager(secret string, ttl time.Duration) *SessionTokenManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionTokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SessionClaims is the payload of an access session token.
type SessionClaims struct {
	GrantID    string           `json:"grant_id"`
	TargetPage model.TargetPage `json:"target_page"`
	jwt.RegisteredClaims
}

func (m *SessionTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a session for a redeemed grant.
func (m *SessionTokenManager) Issue(grantID string, target model.TargetPage) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)
	claims := &SessionClaims{
		GrantID:    grantID,
		TargetPage: target,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   grantID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature and expiry and returns the claims.
func (m *SessionTokenManager) Parse(tokenStr string) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidSession
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.GrantID == "" || !claims.TargetPage.IsValid() {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
