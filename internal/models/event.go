package models

import (
	"fmt"
	"time"
)

// DefaultEventTime is used when the model reports a date but no time.
const DefaultEventTime = "09:00"

// eventTimestampLayout is the local (zone-less) layout sent to the calendar API.
const eventTimestampLayout = "2006-01-02T15:04:05"

// ExtractedEvent is one event the AI model pulled out of a message.
// Date is YYYY-MM-DD; Time is HH:MM and may be empty.
type ExtractedEvent struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// StartISO combines Date and Time into a local ISO-8601 timestamp string,
// substituting DefaultEventTime when no time was reported. No timezone
// conversion happens here; the calendar API gets the zone separately.
func (e *ExtractedEvent) StartISO() string {
	t := e.Time
	if t == "" {
		t = DefaultEventTime
	}
	return fmt.Sprintf("%sT%s:00", e.Date, t)
}

// Start parses the combined timestamp. It fails when the model reported a
// malformed date, in which case the caller drops the event.
func (e *ExtractedEvent) Start() (time.Time, error) {
	return time.Parse(eventTimestampLayout, e.StartISO())
}

// CalendarEvent is the payload for creating a provider calendar event.
// Start and End are local timestamps interpreted in Timezone.
type CalendarEvent struct {
	Subject         string
	Start           time.Time
	End             time.Time
	Timezone        string
	Description     string
	ReminderMinutes int
}

// EventSummary is the reduced view of an existing calendar event returned by
// the upcoming-events listing.
type EventSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	WebLink     string    `json:"web_link,omitempty"`
}

// FormatLocal renders a timestamp in the zone-less layout the calendar API
// expects for event start/end fields.
func FormatLocal(t time.Time) string {
	return t.Format(eventTimestampLayout)
}
