// Package service holds the reconciliation loop that turns interesting inbox
// messages into calendar events.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rundownhq/rundown/internal/filter"
	"github.com/rundownhq/rundown/internal/graph"
	"github.com/rundownhq/rundown/internal/models"
)

const (
	// EventDuration is the length of every created event; extracted events
	// carry a start but no end.
	EventDuration = time.Hour

	// ReminderMinutes is how far ahead of the event the reminder fires.
	ReminderMinutes = 30
)

// CredentialSource yields the users with stored credentials and a usable
// access token per user. An empty token means the user cannot be served.
type CredentialSource interface {
	ListUsers() ([]string, error)
	AccessToken(ctx context.Context, userID string) string
}

// PreferenceSource loads per-user filtering preferences.
type PreferenceSource interface {
	Load(userID string) (*models.Preferences, error)
}

// MailboxGateway covers the provider operations the reconciler needs: the
// sentinel category, recent mail, tagging, and event creation.
type MailboxGateway interface {
	EnsureCategory(ctx context.Context, accessToken, name string) (string, error)
	ListRecentMessages(ctx context.Context, accessToken string, since time.Time) ([]models.Message, error)
	TagMessage(ctx context.Context, accessToken, messageID, tag string) error
	CreateEvent(ctx context.Context, accessToken string, event models.CalendarEvent) (*models.EventSummary, error)
}

// EventExtractor pulls structured events out of message text. A nil result
// means no events, whatever the reason.
type EventExtractor interface {
	Extract(ctx context.Context, subject, body string) []models.ExtractedEvent
}

type Reconciler struct {
	creds     CredentialSource
	prefs     PreferenceSource
	gateway   MailboxGateway
	extractor EventExtractor

	sentinelLabel string
	lookback      time.Duration
	timezone      string

	// userLocks serializes work per user so a slow pass cannot overlap with
	// the next tick for the same mailbox.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewReconciler(
	creds CredentialSource,
	prefs PreferenceSource,
	gateway MailboxGateway,
	extractor EventExtractor,
	sentinelLabel string,
	lookback time.Duration,
) *Reconciler {
	return &Reconciler{
		creds:         creds,
		prefs:         prefs,
		gateway:       gateway,
		extractor:     extractor,
		sentinelLabel: sentinelLabel,
		lookback:      lookback,
		timezone:      localTimezone(),
		userLocks:     make(map[string]*sync.Mutex),
	}
}

// Run performs one reconciliation pass over every user with stored
// credentials. Per-user failures are logged and do not stop the pass.
func (r *Reconciler) Run(ctx context.Context) error {
	users, err := r.creds.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	log.Info().Int("users", len(users)).Msg("starting reconciliation pass")

	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.processUser(ctx, userID); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("failed to process user")
		}
	}
	return nil
}

func (r *Reconciler) processUser(ctx context.Context, userID string) error {
	lock := r.userLock(userID)
	if !lock.TryLock() {
		log.Warn().Str("user", userID).Msg("previous pass still running, skipping user")
		return nil
	}
	defer lock.Unlock()

	accessToken := r.creds.AccessToken(ctx, userID)
	if accessToken == "" {
		log.Warn().Str("user", userID).Msg("no usable access token, skipping user")
		return nil
	}

	prefs, err := r.prefs.Load(userID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if !prefs.Enabled {
		log.Debug().Str("user", userID).Msg("processing disabled, skipping user")
		return nil
	}
	interests := append(append([]string{}, prefs.Interests...), prefs.CustomInterests...)

	if _, err := r.gateway.EnsureCategory(ctx, accessToken, r.sentinelLabel); err != nil {
		return fmt.Errorf("failed to ensure category %q: %w", r.sentinelLabel, err)
	}

	since := time.Now().Add(-r.lookback)
	messages, err := r.gateway.ListRecentMessages(ctx, accessToken, since)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	created := 0
	for _, msg := range messages {
		n, err := r.processMessage(ctx, accessToken, interests, msg)
		if err != nil {
			log.Error().Err(err).Str("user", userID).Str("message", msg.ID).Msg("failed to process message")
			continue
		}
		created += n
	}

	log.Info().
		Str("user", userID).
		Int("messages", len(messages)).
		Int("events_created", created).
		Msg("finished user pass")
	return nil
}

// processMessage handles a single message and returns how many events it
// created. Messages already carrying the sentinel category are skipped; new
// messages are tagged before any event is created, so a crash between tagging
// and creation loses events rather than duplicating them.
func (r *Reconciler) processMessage(ctx context.Context, accessToken string, interests []string, msg models.Message) (int, error) {
	if msg.HasCategory(r.sentinelLabel) {
		return 0, nil
	}

	if err := r.gateway.TagMessage(ctx, accessToken, msg.ID, r.sentinelLabel); err != nil {
		return 0, fmt.Errorf("failed to tag message: %w", err)
	}

	body := graph.PlainText(msg.Body, msg.BodyType)
	if !filter.Matches(interests, msg.Subject, body) {
		return 0, nil
	}

	created := 0
	for _, ev := range r.extractor.Extract(ctx, msg.Subject, body) {
		start, err := ev.Start()
		if err != nil {
			log.Warn().Err(err).Str("title", ev.Title).Msg("extracted event has unusable date, dropping")
			continue
		}

		event := models.CalendarEvent{
			Subject:         ev.Title,
			Start:           start,
			End:             start.Add(EventDuration),
			Timezone:        r.timezone,
			Description:     r.buildDescription(msg, ev),
			ReminderMinutes: ReminderMinutes,
		}

		summary, err := r.gateway.CreateEvent(ctx, accessToken, event)
		if err != nil {
			log.Error().Err(err).Str("title", ev.Title).Msg("failed to create event")
			continue
		}
		log.Info().Str("title", ev.Title).Str("event_id", summary.ID).Msg("created calendar event")
		created++
	}
	return created, nil
}

// buildDescription prefixes the extracted details with where the event came
// from, so the calendar entry is traceable back to the message.
func (r *Reconciler) buildDescription(msg models.Message, ev models.ExtractedEvent) string {
	return fmt.Sprintf("From: %s\nDate: %s\nSubject: %s\n\n%s",
		msg.Sender, models.FormatLocal(msg.ReceivedAt), msg.Subject, ev.Description)
}

func (r *Reconciler) userLock(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.userLocks[userID] = lock
	}
	return lock
}

// localTimezone names the host timezone for provider-side event rendering.
// time.Local reports the unusable name "Local" when TZ is unset in some
// container setups, so fall back to UTC.
func localTimezone() string {
	name := time.Now().Location().String()
	if name == "" || name == "Local" {
		return "UTC"
	}
	return name
}
