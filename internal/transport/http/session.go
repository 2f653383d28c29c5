package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cbt-exam-service/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

const sessionCookie = "session"

var errNoSession = errors.New("missing or invalid session")

// Session identifies the signed-in quiz taker.
type Session struct {
	AccountID int64
	Username  string
}

type sessionClaims struct {
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens carrying the account id.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for account and its expiry.
func (i *SessionIssuer) Issue(account domain.Account) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := sessionClaims{
		Username: account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expires, nil
}

// Verify parses raw and returns the session it carries.
func (i *SessionIssuer) Verify(raw string) (Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", errNoSession, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("%w: bad subject", errNoSession)
	}
	return Session{AccountID: id, Username: claims.Username}, nil
}

// FromRequest reads the token from the Authorization header or the session cookie.
func (i *SessionIssuer) FromRequest(r *http.Request) (Session, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return i.Verify(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return i.Verify(c.Value)
	}
	return Session{}, errNoSession
}
