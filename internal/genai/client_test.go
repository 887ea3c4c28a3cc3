package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubModel starts a fake generateContent endpoint that always answers with
// the given text and returns a client pointed at it.
func stubModel(t *testing.T, reply string) (*Client, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected api key in query, got %q", r.URL.Query().Get("key"))
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]string{
							{"text": reply},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("test-key", "gemini-1.5-flash", srv.URL), calls
}

func TestExtractParsesEvents(t *testing.T) {
	reply := `{"has_events": true, "events": [{"title": "Team Sync", "date": "2024-06-07", "time": "15:00", "description": "Weekly sync"}]}`
	client, _ := stubModel(t, reply)

	events := client.Extract(context.Background(), "Team Sync Friday", "See you at 3pm")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Title != "Team Sync" {
		t.Errorf("expected title 'Team Sync', got %q", events[0].Title)
	}
	if events[0].Date != "2024-06-07" {
		t.Errorf("expected date 2024-06-07, got %q", events[0].Date)
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	fenced := "```json\n{\"has_events\": true, \"events\": [{\"title\": \"Demo\", \"date\": \"2024-07-01\", \"time\": \"10:00\", \"description\": \"Product demo\"}]}\n```"
	client, _ := stubModel(t, fenced)

	events := client.Extract(context.Background(), "Demo", "body")
	if len(events) != 1 {
		t.Fatalf("expected 1 event from fenced reply, got %d", len(events))
	}
	if events[0].Title != "Demo" {
		t.Errorf("expected title 'Demo', got %q", events[0].Title)
	}
}

func TestExtractNoEvents(t *testing.T) {
	client, _ := stubModel(t, `{"has_events": false, "events": []}`)

	events := client.Extract(context.Background(), "Newsletter", "nothing here")
	if len(events) != 0 {
		t.Fatalf("expected 0 events, got %d", len(events))
	}
}

func TestExtractInvalidJSONReturnsEmpty(t *testing.T) {
	client, _ := stubModel(t, "Sure! Here are the events I found in the email.")

	events := client.Extract(context.Background(), "Subject", "body")
	if events != nil {
		t.Fatalf("expected nil events for unparseable reply, got %v", events)
	}
}

func TestExtractDropsDatelessEvents(t *testing.T) {
	reply := `{"has_events": true, "events": [{"title": "Vague plans", "date": "", "time": "", "description": ""}, {"title": "Review", "date": "2024-08-01", "time": "", "description": ""}]}`
	client, _ := stubModel(t, reply)

	events := client.Extract(context.Background(), "Plans", "body")
	if len(events) != 1 {
		t.Fatalf("expected dateless event to be dropped, got %d events", len(events))
	}
	if events[0].Title != "Review" {
		t.Errorf("expected remaining event 'Review', got %q", events[0].Title)
	}
}

func TestExtractServerErrorReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"message": "backend failure"}}`)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", "gemini-1.5-flash", srv.URL)
	events := client.Extract(context.Background(), "Subject", "body")
	if events != nil {
		t.Fatalf("expected nil events on server error, got %v", events)
	}
}

func TestExtractWithoutAPIKeySkipsCall(t *testing.T) {
	client, calls := stubModel(t, `{"has_events": true, "events": []}`)
	client.apiKey = ""

	events := client.Extract(context.Background(), "Subject", "body")
	if events != nil {
		t.Fatalf("expected nil events without api key, got %v", events)
	}
	if *calls != 0 {
		t.Errorf("expected no API calls without key, got %d", *calls)
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare json",
			content: `{"has_events": false}`,
			want:    `{"has_events": false}`,
		},
		{
			name:    "json fence",
			content: "```json\n{\"has_events\": false}\n```",
			want:    `{"has_events": false}`,
		},
		{
			name:    "prose around json",
			content: "Here is the result:\n{\"has_events\": false}\nHope that helps!",
			want:    `{"has_events": false}`,
		},
		{
			name:    "no json at all",
			content: "no events found",
			want:    "no events found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.content); got != tt.want {
				t.Errorf("cleanJSONResponse(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	long := make([]rune, 0, 1500)
	for i := 0; i < 1500; i++ {
		long = append(long, 'a')
	}
	if got := truncate(string(long), maxBodyChars); len([]rune(got)) != maxBodyChars {
		t.Errorf("expected %d runes after truncation, got %d", maxBodyChars, len([]rune(got)))
	}
}
