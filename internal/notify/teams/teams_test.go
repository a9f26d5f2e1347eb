package teams

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

func testRequest() *helpdesk.Request {
	return &helpdesk.Request{
		Category:       "IT",
		ID:             "r1",
		Title:          "VPN down",
		Description:    "No connectivity",
		Priority:       "High",
		ActionHint:     "notify-team",
		RequesterEmail: "user@example.com",
	}
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	view := helpdesk.EnrichedView{Title: "VPN outage", Summary: "Office VPN is unreachable.", Urgency: "High"}

	if err := n.Send(context.Background(), view, testRequest()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got["@type"] != "MessageCard" {
		t.Errorf("@type = %v, want MessageCard", got["@type"])
	}
	if got["themeColor"] != alertColor {
		t.Errorf("themeColor = %v, want %s for high urgency", got["themeColor"], alertColor)
	}
	if got["title"] != "VPN outage" {
		t.Errorf("title = %v, want enriched title", got["title"])
	}

	sections, ok := got["sections"].([]any)
	if !ok || len(sections) != 1 {
		t.Fatalf("expected one section, got %v", got["sections"])
	}
	section := sections[0].(map[string]any)
	if section["text"] != "Office VPN is unreachable." {
		t.Errorf("section text = %v, want enriched summary", section["text"])
	}
	activity := section["activityTitle"].(string)
	if !strings.Contains(activity, "IT") {
		t.Errorf("activityTitle = %q, want to contain category", activity)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Send(context.Background(), helpdesk.EnrichedView{}, testRequest()); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream error"))
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Send(context.Background(), helpdesk.EnrichedView{}, testRequest())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %q, want to contain status code 502", err.Error())
	}
}

func TestCardColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		urgency string
		want    string
	}{
		{"High", alertColor},
		{"high", alertColor},
		{"HIGH", alertColor},
		{"Normal", defaultColor},
		{"Low", defaultColor},
		{"", defaultColor},
	}

	for _, tt := range tests {
		t.Run("urgency_"+tt.urgency, func(t *testing.T) {
			t.Parallel()
			if got := cardColor(tt.urgency); got != tt.want {
				t.Errorf("cardColor(%q) = %q, want %q", tt.urgency, got, tt.want)
			}
		})
	}
}

func TestBuildCard_EmptyFieldsGetPlaceholders(t *testing.T) {
	t.Parallel()

	r := &helpdesk.Request{Category: "HR", ID: "r2"}
	card := buildCard(helpdesk.EnrichedView{}, r)

	if card["title"] != "New helpdesk request" {
		t.Errorf("title = %v, want placeholder", card["title"])
	}

	facts := card["sections"].([]map[string]any)[0]["facts"].([]map[string]any)
	if facts[0]["value"] != "n/a" || facts[1]["value"] != "n/a" {
		t.Errorf("facts = %v, want n/a placeholders", facts)
	}
}
