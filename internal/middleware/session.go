package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/underplayed/api/internal/model"
	"github.com/underplayed/api/pkg/response"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "underplayed_session"

// SessionStore resolves a session ID from the cookie to the stored record.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionMiddleware authenticates requests by the session cookie: an HS256
// JWT holding the session ID, resolved against the store on every request so
// revoked or expired sessions are rejected immediately.
type SessionMiddleware struct {
	store  SessionStore
	secret string
}

func NewSessionMiddleware(store SessionStore, secret string) *SessionMiddleware {
	return &SessionMiddleware{
		store:  store,
		secret: secret,
	}
}

// Authenticate validates the session cookie and loads the session record.
func (m *SessionMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(SessionCookie)
		if cookie == "" {
			return response.Unauthorized(c, "Not logged in")
		}

		sessionID, err := ParseSessionToken(cookie, m.secret)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired session")
		}

		sess, err := m.store.GetSession(c.Context(), sessionID)
		if err != nil {
			return response.Unauthorized(c, "Session expired")
		}

		c.Locals("sessionId", sess.ID)
		c.Locals("userId", sess.SpotifyUser)
		c.Locals("session", sess)
		return c.Next()
	}
}

// IssueSessionToken signs a session token valid for ttl.
func IssueSessionToken(sessionID, secret string, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken validates a session token and returns the session ID.
func ParseSessionToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.SessionID, nil
}

// GetSessionID extracts the session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	if id, ok := c.Locals("sessionId").(string); ok {
		return id
	}
	return ""
}

// GetUserID extracts the Spotify user ID from context.
func GetUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals("userId").(string); ok {
		return id
	}
	return ""
}

// GetSession extracts the full session record from context.
func GetSession(c *fiber.Ctx) *model.Session {
	if sess, ok := c.Locals("session").(*model.Session); ok {
		return sess
	}
	return nil
}
