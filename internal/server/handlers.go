package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rundownhq/rundown/internal/graph"
	"github.com/rundownhq/rundown/internal/models"
)

// handleLogin starts the OAuth flow: a fresh state nonce goes into a cookie
// and the user is sent to the provider's consent page.
func (s *Server) handleLogin(c echo.Context) error {
	state := uuid.NewString()
	s.sessions.SetState(c, state)
	return c.Redirect(http.StatusFound, s.auth.AuthCodeURL(state))
}

// handleCallback finishes the OAuth flow: state check, code exchange,
// credential persistence, session cookie.
func (s *Server) handleCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn().Str("error", errParam).Str("description", c.QueryParam("error_description")).Msg("provider rejected sign-in")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sign-in was rejected: " + errParam})
	}

	state := c.QueryParam("state")
	if state == "" || state != s.sessions.TakeState(c) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "state mismatch"})
	}

	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing authorization code"})
	}

	identity, bundle, err := s.auth.Exchange(c.Request().Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("code exchange failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "sign-in failed"})
	}

	if err := s.creds.Save(identity.UserID, bundle); err != nil {
		log.Error().Err(err).Str("user", identity.UserID).Msg("failed to store credentials")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store credentials"})
	}

	token, err := s.sessions.Create(identity.UserID, identity.Email, identity.Name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}
	s.sessions.Set(c, token)

	log.Info().Str("user", identity.UserID).Str("email", identity.Email).Msg("user signed in")
	return c.Redirect(http.StatusFound, "/")
}

// handleLogout drops the session cookie only; stored credentials survive so
// background processing continues.
func (s *Server) handleLogout(c echo.Context) error {
	s.sessions.Clear(c)
	return c.Redirect(http.StatusFound, "/")
}

// handleLogoutFull drops the session and deletes the stored credentials,
// which also removes the user from background processing.
func (s *Server) handleLogoutFull(c echo.Context) error {
	claims := sessionClaims(c)
	if err := s.creds.Delete(claims.UserID); err != nil {
		log.Error().Err(err).Str("user", claims.UserID).Msg("failed to delete credentials")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete credentials"})
	}
	s.sessions.Clear(c)
	log.Info().Str("user", claims.UserID).Msg("user fully logged out")
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleSession(c echo.Context) error {
	claims := sessionClaims(c)
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       claims.UserID,
		"email":         claims.Email,
		"name":          claims.Name,
	})
}

func (s *Server) handleCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"categories": InterestCategories})
}

func (s *Server) handleGetPreferences(c echo.Context) error {
	claims := sessionClaims(c)
	prefs, err := s.prefs.Load(claims.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load preferences"})
	}
	return c.JSON(http.StatusOK, prefs)
}

// handlePostPreferences replaces the stored preferences wholesale. Interests
// must come from the catalog; custom interests are free-form.
func (s *Server) handlePostPreferences(c echo.Context) error {
	claims := sessionClaims(c)

	var prefs models.Preferences
	if err := c.Bind(&prefs); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if invalid := invalidInterests(prefs.Interests); len(invalid) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":             "unknown interest categories",
			"invalid_interests": invalid,
		})
	}
	if prefs.Interests == nil {
		prefs.Interests = []string{}
	}
	if prefs.CustomInterests == nil {
		prefs.CustomInterests = []string{}
	}

	if err := s.prefs.Save(claims.UserID, &prefs); err != nil {
		log.Error().Err(err).Str("user", claims.UserID).Msg("failed to save preferences")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save preferences"})
	}
	return c.JSON(http.StatusOK, &prefs)
}

// handleCalendar lists the user's upcoming events. A provider permission
// failure means the stored consent no longer covers the calendar, so the
// client is told to send the user back through sign-in.
func (s *Server) handleCalendar(c echo.Context) error {
	claims := sessionClaims(c)

	accessToken := s.creds.AccessToken(c.Request().Context(), claims.UserID)
	if accessToken == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":    "stored credentials are no longer usable",
			"redirect": "/login",
		})
	}

	events, err := s.gateway.ListUpcomingEvents(c.Request().Context(), accessToken)
	if err != nil {
		if graph.IsPermissionError(err) {
			return c.JSON(http.StatusForbidden, map[string]any{
				"error":     "calendar access was denied",
				"reconsent": true,
			})
		}
		log.Error().Err(err).Str("user", claims.UserID).Msg("failed to list events")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to list events"})
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

type deleteEventRequest struct {
	EventID string `json:"event_id"`
}

func (s *Server) handleCalendarDelete(c echo.Context) error {
	claims := sessionClaims(c)

	var req deleteEventRequest
	if err := c.Bind(&req); err != nil || req.EventID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "event_id is required"})
	}

	accessToken := s.creds.AccessToken(c.Request().Context(), claims.UserID)
	if accessToken == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":    "stored credentials are no longer usable",
			"redirect": "/login",
		})
	}

	if err := s.gateway.DeleteEvent(c.Request().Context(), accessToken, req.EventID); err != nil {
		log.Error().Err(err).Str("user", claims.UserID).Str("event", req.EventID).Msg("failed to delete event")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to delete event"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

type outlookMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	Categories []string  `json:"categories"`
}

// handleOutlook previews the recent inbox window the watcher looks at.
func (s *Server) handleOutlook(c echo.Context) error {
	claims := sessionClaims(c)

	accessToken := s.creds.AccessToken(c.Request().Context(), claims.UserID)
	if accessToken == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":    "stored credentials are no longer usable",
			"redirect": "/login",
		})
	}

	messages, err := s.gateway.ListRecentMessages(c.Request().Context(), accessToken, time.Now().Add(-s.lookback))
	if err != nil {
		if graph.IsPermissionError(err) {
			return c.JSON(http.StatusForbidden, map[string]any{
				"error":     "mailbox access was denied",
				"reconsent": true,
			})
		}
		log.Error().Err(err).Str("user", claims.UserID).Msg("failed to list messages")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to list messages"})
	}

	out := make([]outlookMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, outlookMessage{
			ID:         m.ID,
			Subject:    m.Subject,
			Sender:     m.Sender,
			ReceivedAt: m.ReceivedAt,
			Categories: m.Categories,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": out})
}
