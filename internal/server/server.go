// Package server exposes the web surface: OAuth sign-in, session management,
// preference editing, and calendar inspection.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rundownhq/rundown/internal/models"
	"github.com/rundownhq/rundown/internal/msauth"
)

// Authenticator drives the OAuth authorization-code flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*msauth.Identity, *models.TokenBundle, error)
}

// CredentialStore persists provider credentials per user.
type CredentialStore interface {
	Save(userID string, bundle *models.TokenBundle) error
	Delete(userID string) error
	AccessToken(ctx context.Context, userID string) string
}

// PreferenceStore persists per-user filtering preferences.
type PreferenceStore interface {
	Load(userID string) (*models.Preferences, error)
	Save(userID string, prefs *models.Preferences) error
}

// ProviderGateway covers the provider reads and deletes the API serves
// directly to signed-in users.
type ProviderGateway interface {
	ListUpcomingEvents(ctx context.Context, accessToken string) ([]models.EventSummary, error)
	DeleteEvent(ctx context.Context, accessToken, eventID string) error
	ListRecentMessages(ctx context.Context, accessToken string, since time.Time) ([]models.Message, error)
}

type Server struct {
	echo     *echo.Echo
	sessions *SessionManager
	auth     Authenticator
	creds    CredentialStore
	prefs    PreferenceStore
	gateway  ProviderGateway
	lookback time.Duration
}

func New(
	sessions *SessionManager,
	auth Authenticator,
	creds CredentialStore,
	prefs PreferenceStore,
	gateway ProviderGateway,
	lookback time.Duration,
) *Server {
	s := &Server{
		echo:     echo.New(),
		sessions: sessions,
		auth:     auth,
		creds:    creds,
		prefs:    prefs,
		gateway:  gateway,
		lookback: lookback,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return true, nil
		},
		AllowCredentials: true,
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/login", s.handleLogin)
	s.echo.GET("/oauth/callback", s.handleCallback)
	s.echo.GET("/logout", s.handleLogout)

	api := s.echo.Group("/api")
	api.GET("/preferences/categories", s.handleCategories)

	authed := api.Group("", s.requireSession)
	authed.GET("/session", s.handleSession)
	authed.POST("/logout-full", s.handleLogoutFull)
	authed.GET("/preferences", s.handleGetPreferences)
	authed.POST("/preferences", s.handlePostPreferences)
	authed.GET("/calendar", s.handleCalendar)
	authed.POST("/calendar/delete", s.handleCalendarDelete)
	authed.GET("/outlook", s.handleOutlook)
}

// requireSession rejects requests without a valid session cookie and makes
// the claims available to handlers.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := s.sessions.Get(c)
		if claims == nil {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"authenticated": false,
				"error":         "authentication required",
				"redirect":      "/login",
			})
		}
		c.Set("claims", claims)
		return next(c)
	}
}

func sessionClaims(c echo.Context) *Claims {
	claims, _ := c.Get("claims").(*Claims)
	return claims
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
