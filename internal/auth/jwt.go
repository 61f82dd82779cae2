package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubprotocolPrefix is the Sec-WebSocket-Protocol prefix carrying the
// session token. Browsers cannot set arbitrary headers on a WebSocket
// handshake, so the token rides in the subprotocol list instead.
const SubprotocolPrefix = "access_token."

var (
	ErrMissingToken = errors.New("no session token in subprotocol list")
	ErrInvalidToken = errors.New("invalid or expired session token")
)

// SessionAuthenticator issues and validates short-lived session tokens.
type SessionAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionAuthenticator creates an authenticator signing with the given
// secret. Tokens expire after ttl.
func NewSessionAuthenticator(secret string, ttl time.Duration) *SessionAuthenticator {
	return &SessionAuthenticator{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// IssueToken generates a signed session token.
func (a *SessionAuthenticator) IssueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken verifies a session token's signature and expiry.
func (a *SessionAuthenticator) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	return nil
}

// NegotiateSubprotocol scans a Sec-WebSocket-Protocol header value for a
// token-bearing subprotocol and validates it. On success it returns the
// matched subprotocol, which the server must echo back in the upgrade
// response so the client handshake completes.
func (a *SessionAuthenticator) NegotiateSubprotocol(header string) (string, error) {
	for _, proto := range strings.Split(header, ",") {
		proto = strings.TrimSpace(proto)
		if !strings.HasPrefix(proto, SubprotocolPrefix) {
			continue
		}

		if err := a.ValidateToken(strings.TrimPrefix(proto, SubprotocolPrefix)); err != nil {
			return "", err
		}
		return proto, nil
	}

	return "", ErrMissingToken
}
