package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wondershark/backend/internal/models"
)

// Sessions issues JWT sessions and mirrors them into an HttpOnly cookie so the
// browser stays logged in across page loads.
type Sessions struct {
	jwt        *JWTService
	cookieName string
	secure     bool
}

// NewSessions creates a session issuer.
func NewSessions(jwt *JWTService, cookieName string, secure bool) *Sessions {
	if cookieName == "" {
		cookieName = "ws_session"
	}
	return &Sessions{jwt: jwt, cookieName: cookieName, secure: secure}
}

// CookieName is the cookie carrying the session token.
func (s *Sessions) CookieName() string {
	return s.cookieName
}

// JWT returns the token service backing the sessions.
func (s *Sessions) JWT() *JWTService {
	return s.jwt
}

// Issue signs a token for user and sets the session cookie.
func (s *Sessions) Issue(c *gin.Context, user *models.User, roles []string) (string, error) {
	token, err := s.jwt.Generate(user.ID, user.Email, roles)
	if err != nil {
		return "", err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, token, int(s.jwt.Expire().Seconds()), "/", "", s.secure, true)
	return token, nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, "", -1, "/", "", s.secure, true)
}
