package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	sessionCookieName = "rundown_session"
	stateCookieName   = "rundown_oauth_state"
	sessionDuration   = 24 * time.Hour
	stateDuration     = 10 * time.Minute
)

// Claims contains the JWT claims for a signed-in user session.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// SessionManager handles JWT session creation and validation.
type SessionManager struct {
	secret []byte
}

func NewSessionManager(secret string) *SessionManager {
	if secret == "" {
		// Generate random key (sessions won't persist across restarts)
		b := make([]byte, 32)
		rand.Read(b)
		secret = hex.EncodeToString(b)
	}
	return &SessionManager{secret: []byte(secret)}
}

// Create generates a new JWT session token.
func (s *SessionManager) Create(userID, email, name string) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "rundown",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses and validates a JWT token.
func (s *SessionManager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Get retrieves and validates the session from request cookies.
func (s *SessionManager) Get(c echo.Context) *Claims {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	claims, err := s.Validate(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}

// Set stores the session token in a cookie.
func (s *SessionManager) Set(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// Clear removes the session cookie.
func (s *SessionManager) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:   sessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// SetState stores the OAuth state nonce while the user is off at the
// provider's consent page.
func (s *SessionManager) SetState(c echo.Context, state string) {
	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateDuration.Seconds()),
	})
}

// TakeState reads and immediately clears the OAuth state cookie.
func (s *SessionManager) TakeState(c echo.Context) string {
	cookie, err := c.Cookie(stateCookieName)
	c.SetCookie(&http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	if err != nil {
		return ""
	}
	return cookie.Value
}
