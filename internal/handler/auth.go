package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/underplayed/api/internal/client"
	"github.com/underplayed/api/internal/middleware"
	"github.com/underplayed/api/internal/model"
	"github.com/underplayed/api/internal/store"
	"github.com/underplayed/api/pkg/response"
)

const authStateTTL = 10 * time.Minute

// AuthStore is the slice of the status store the auth flow needs.
type AuthStore interface {
	PutAuthState(ctx context.Context, nonce, lastfmUser string, ttl time.Duration) error
	TakeAuthState(ctx context.Context, nonce string) (string, error)
	PutSession(ctx context.Context, sess *model.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// AuthHandler runs the Spotify authorization-code flow and establishes the
// cookie session.
type AuthHandler struct {
	spotify       client.Authenticator
	store         AuthStore
	sessionSecret string
	sessionTTL    time.Duration
}

func NewAuthHandler(spotify client.Authenticator, authStore AuthStore, sessionSecret string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		spotify:       spotify,
		store:         authStore,
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
	}
}

// Login handles GET /auth/login?lastfm_user=name. The Last.fm username rides
// along with the CSRF state nonce so the callback can bind both accounts into
// one session.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	lastfmUser := c.Query("lastfm_user")
	if lastfmUser == "" {
		return response.ValidationError(c, "lastfm_user query parameter is required", nil)
	}

	nonce := uuid.New().String()
	if err := h.store.PutAuthState(c.Context(), nonce, lastfmUser, authStateTTL); err != nil {
		return response.ServiceError(c, "Could not start login")
	}

	return c.Redirect(h.spotify.AuthCodeURL(nonce), fiber.StatusTemporaryRedirect)
}

// Callback handles GET /auth/callback.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return response.Unauthorized(c, "Spotify authorization was denied")
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return response.ValidationError(c, "Missing code or state", nil)
	}

	lastfmUser, err := h.store.TakeAuthState(c.Context(), state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.Unauthorized(c, "Unknown or expired login state")
		}
		return response.ServiceError(c, "Could not verify login state")
	}

	tok, err := h.spotify.Exchange(c.Context(), code)
	if err != nil {
		return response.Unauthorized(c, "Token exchange failed")
	}

	user, err := h.spotify.CurrentUser(c.Context(), tok)
	if err != nil {
		return response.ServiceError(c, "Could not load Spotify profile")
	}

	sess := &model.Session{
		ID:           uuid.New().String(),
		SpotifyUser:  user.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		LastfmUser:   lastfmUser,
	}
	if !tok.Expiry.IsZero() {
		sess.ExpiresAt = tok.Expiry.Unix()
	}
	if err := h.store.PutSession(c.Context(), sess, h.sessionTTL); err != nil {
		return response.ServiceError(c, "Could not save session")
	}

	signed, err := middleware.IssueSessionToken(sess.ID, h.sessionSecret, h.sessionTTL)
	if err != nil {
		return response.ServiceError(c, "Could not issue session token")
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    signed,
		Expires:  time.Now().Add(h.sessionTTL),
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Redirect("/", fiber.StatusTemporaryRedirect)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if cookie := c.Cookies(middleware.SessionCookie); cookie != "" {
		if sessionID, err := middleware.ParseSessionToken(cookie, h.sessionSecret); err == nil {
			_ = h.store.DeleteSession(c.Context(), sessionID)
		}
	}

	c.ClearCookie(middleware.SessionCookie)
	return response.OK(c, fiber.Map{"loggedOut": true})
}
