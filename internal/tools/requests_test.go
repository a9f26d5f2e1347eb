package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// fakeLister serves a fixed record set.
type fakeLister struct {
	records []*helpdesk.Request
	err     error
}

func (f *fakeLister) List(context.Context) ([]*helpdesk.Request, error) {
	return f.records, f.err
}

func sampleRecords(now time.Time) []*helpdesk.Request {
	return []*helpdesk.Request{
		{Category: "IT", ID: "a", Title: "VPN down", Priority: "High", ActionHint: "create-task", CreatedAt: now.AddDate(0, 0, -1)},
		{Category: "IT", ID: "b", Title: "Laptop slow", Priority: "Normal", ActionHint: "notify-team", CreatedAt: now.AddDate(0, 0, -3)},
		{Category: "HR", ID: "c", Title: "Payroll question", Priority: "Normal", CreatedAt: now.AddDate(0, 0, -10)},
		{Category: "Finance", ID: "d", Title: "Invoice stuck", Priority: "Low", ActionHint: "create-ticket", CreatedAt: now.AddDate(0, 0, -30)},
	}
}

func execute(t *testing.T, tool Tool, params string) map[string]any {
	t.Helper()
	out, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	return result
}

func TestCategoryCount(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{records: sampleRecords(time.Now().UTC())}
	tool := NewCategoryCount(lister)

	t.Run("all categories", func(t *testing.T) {
		result := execute(t, tool, `{}`)
		if result["IT"] != float64(2) || result["HR"] != float64(1) || result["total"] != float64(4) {
			t.Errorf("result = %v", result)
		}
	})

	t.Run("specific category is case-insensitive", func(t *testing.T) {
		result := execute(t, tool, `{"category":"it"}`)
		if result["it"] != float64(2) || result["total"] != float64(4) {
			t.Errorf("result = %v", result)
		}
	})
}

func TestPriorityCount(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{records: sampleRecords(time.Now().UTC())}
	result := execute(t, NewPriorityCount(lister), `{"priority":"Normal"}`)

	if result["Normal"] != float64(2) || result["total"] != float64(4) {
		t.Errorf("result = %v", result)
	}
}

func TestActionCount(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{records: sampleRecords(time.Now().UTC())}
	tool := NewActionCount(lister)

	t.Run("breakdown counts blank hints as store-only", func(t *testing.T) {
		result := execute(t, tool, `{}`)
		breakdown, ok := result["action_breakdown"].(map[string]any)
		if !ok {
			t.Fatalf("no action_breakdown in %v", result)
		}
		if breakdown["store-only"] != float64(1) || breakdown["create-task"] != float64(1) {
			t.Errorf("breakdown = %v", breakdown)
		}
		if result["total_requests"] != float64(4) {
			t.Errorf("total_requests = %v", result["total_requests"])
		}
	})

	t.Run("specific action", func(t *testing.T) {
		result := execute(t, tool, `{"action":"store-only"}`)
		if result["store-only"] != float64(1) {
			t.Errorf("result = %v", result)
		}
	})
}

func TestRecentRequests(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tool := &RecentRequests{
		store: &fakeLister{records: sampleRecords(now)},
		now:   func() time.Time { return now },
	}

	result := execute(t, tool, `{"days":7,"limit":1}`)

	if result["total_found"] != float64(2) {
		t.Errorf("total_found = %v, want 2", result["total_found"])
	}
	items, ok := result["requests"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("requests = %v, want 1 item", result["requests"])
	}
	first, _ := items[0].(map[string]any)
	if first["title"] != "VPN down" {
		t.Errorf("newest request = %v, want the 1-day-old record first", first)
	}
}

func TestRecentRequests_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tool := NewRecentRequests(&fakeLister{records: sampleRecords(now)})

	result := execute(t, tool, `{}`)

	if result["days"] != float64(7) || result["limit"] != float64(10) {
		t.Errorf("defaults = days %v limit %v, want 7 and 10", result["days"], result["limit"])
	}
}

func TestTotalCount(t *testing.T) {
	t.Parallel()

	result := execute(t, NewTotalCount(&fakeLister{records: sampleRecords(time.Now().UTC())}), ``)
	if result["total_tickets"] != float64(4) {
		t.Errorf("result = %v", result)
	}
}

func TestTools_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{err: errors.New("table unavailable")}
	for _, tool := range []Tool{
		NewCategoryCount(lister),
		NewPriorityCount(lister),
		NewActionCount(lister),
		NewRecentRequests(lister),
		NewTotalCount(lister),
	} {
		if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
			t.Errorf("%s: Execute returned nil error", tool.Name())
		}
	}
}

func TestNewRequestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRequestRegistry(&fakeLister{})
	defs := reg.ToToolDefs()
	if len(defs) != 5 {
		t.Fatalf("registry has %d tools, want 5", len(defs))
	}
	for _, def := range defs {
		if _, ok := reg.Get(def.Name); !ok {
			t.Errorf("Get(%q) not found", def.Name)
		}
		var schema map[string]any
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			t.Errorf("%s: schema is not valid JSON: %v", def.Name, err)
		}
	}
}
