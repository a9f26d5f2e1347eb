package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/llm"
	"github.com/linnemanlabs/helpdesk/internal/tools"
)

// mockProvider returns preconfigured responses in sequence and records the
// requests it was sent.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	errs      []error
	requests  []*llm.ChatRequest
	callIdx   int
}

func (m *mockProvider) Send(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	idx := m.callIdx
	m.callIdx++

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &llm.ChatResponse{
		Content:    []llm.ContentBlock{{Type: "text", Text: "fallback"}},
		StopReason: llm.StopEnd,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

// mockTool returns preconfigured Execute results and records its inputs.
type mockTool struct {
	name   string
	output json.RawMessage
	err    error

	mu     sync.Mutex
	inputs []json.RawMessage
}

func (m *mockTool) Name() string                { return m.name }
func (m *mockTool) Description() string         { return "mock tool" }
func (m *mockTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	return m.output, m.err
}

func registryWith(ts ...tools.Tool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range ts {
		reg.Register(t)
	}
	return reg
}

func TestAsk_SingleTurn(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.ChatResponse{{
			Content:    []llm.ContentBlock{{Type: "text", Text: "You have 4 requests."}},
			StopReason: llm.StopEnd,
			Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
		}},
	}
	a := New(provider, registryWith(), log.Nop())

	answer, err := a.Ask(context.Background(), "how many requests?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "You have 4 requests." {
		t.Errorf("answer = %q", answer)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.requests))
	}
	if provider.requests[0].System == "" {
		t.Error("request carried no system prompt")
	}
}

func TestAsk_ToolRound(t *testing.T) {
	t.Parallel()

	tool := &mockTool{name: "get_total_ticket_count", output: json.RawMessage(`{"total_tickets":4}`)}
	provider := &mockProvider{
		responses: []*llm.ChatResponse{
			{
				Content: []llm.ContentBlock{{
					Type:  "tool_use",
					ID:    "call-1",
					Name:  "get_total_ticket_count",
					Input: json.RawMessage(`{}`),
				}},
				StopReason: llm.StopToolUse,
				Usage:      llm.Usage{InputTokens: 100, OutputTokens: 10},
			},
			{
				Content:    []llm.ContentBlock{{Type: "text", Text: "There are 4 requests in total."}},
				StopReason: llm.StopEnd,
				Usage:      llm.Usage{InputTokens: 150, OutputTokens: 20},
			},
		},
	}
	a := New(provider, registryWith(tool), log.Nop())

	answer, err := a.Ask(context.Background(), "total?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "There are 4 requests in total." {
		t.Errorf("answer = %q", answer)
	}
	if len(tool.inputs) != 1 {
		t.Fatalf("tool executed %d times, want 1", len(tool.inputs))
	}

	// The second request must carry the tool result back to the model.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "user" || len(last.Content) != 1 {
		t.Fatalf("last message = %+v", last)
	}
	result := last.Content[0]
	if result.Type != "tool_result" || result.ToolUseID != "call-1" || result.IsError {
		t.Errorf("tool result block = %+v", result)
	}
	if result.Content != `{"total_tickets":4}` {
		t.Errorf("tool result content = %q", result.Content)
	}
}

func TestAsk_UnknownTool(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.ChatResponse{
			{
				Content: []llm.ContentBlock{{
					Type:  "tool_use",
					ID:    "call-1",
					Name:  "no_such_tool",
					Input: json.RawMessage(`{}`),
				}},
				StopReason: llm.StopToolUse,
				Usage:      llm.Usage{InputTokens: 100, OutputTokens: 10},
			},
			{
				Content:    []llm.ContentBlock{{Type: "text", Text: "done"}},
				StopReason: llm.StopEnd,
			},
		},
	}
	a := New(provider, registryWith(), log.Nop())

	if _, err := a.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !last.Content[0].IsError || !strings.Contains(last.Content[0].Content, "unknown tool") {
		t.Errorf("tool result = %+v, want an is_error unknown-tool result", last.Content[0])
	}
}

func TestAsk_ToolError(t *testing.T) {
	t.Parallel()

	tool := &mockTool{name: "get_total_ticket_count", err: errors.New("table unavailable")}
	provider := &mockProvider{
		responses: []*llm.ChatResponse{
			{
				Content: []llm.ContentBlock{{
					Type:  "tool_use",
					ID:    "call-1",
					Name:  "get_total_ticket_count",
					Input: json.RawMessage(`{}`),
				}},
				StopReason: llm.StopToolUse,
			},
			{
				Content:    []llm.ContentBlock{{Type: "text", Text: "done"}},
				StopReason: llm.StopEnd,
			},
		},
	}
	a := New(provider, registryWith(tool), log.Nop())

	if _, err := a.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !last.Content[0].IsError || !strings.Contains(last.Content[0].Content, "table unavailable") {
		t.Errorf("tool result = %+v, want an is_error result naming the failure", last.Content[0])
	}
}

func TestAsk_ProviderError_FriendlyAnswer(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("rate limited")}}
	a := New(provider, registryWith(), log.Nop())

	answer, err := a.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(answer, "rate limited") || !strings.Contains(answer, "rephrasing") {
		t.Errorf("answer = %q, want an apology naming the failure", answer)
	}
}

func TestAsk_ToolBudget(t *testing.T) {
	t.Parallel()

	// One response carrying a full budget of tool calls stops the loop
	// before another model turn.
	calls := make([]llm.ContentBlock, 0, MaxToolRounds)
	for i := 0; i < MaxToolRounds; i++ {
		calls = append(calls, llm.ContentBlock{
			Type:  "tool_use",
			ID:    "call",
			Name:  "no_such_tool",
			Input: json.RawMessage(`{}`),
		})
	}
	provider := &mockProvider{
		responses: []*llm.ChatResponse{{
			Content:    calls,
			StopReason: llm.StopToolUse,
		}},
	}
	a := New(provider, registryWith(), log.Nop())

	answer, err := a.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(answer, "tool call budget") {
		t.Errorf("answer = %q, want the tool budget message", answer)
	}
	if len(provider.requests) != 1 {
		t.Errorf("provider called %d times, want 1", len(provider.requests))
	}
}

func TestAsk_TokenBudget(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.ChatResponse{{
			Content: []llm.ContentBlock{{
				Type:  "tool_use",
				ID:    "call-1",
				Name:  "no_such_tool",
				Input: json.RawMessage(`{}`),
			}},
			StopReason: llm.StopToolUse,
			Usage:      llm.Usage{InputTokens: MaxTokens, OutputTokens: 1},
		}},
	}
	a := New(provider, registryWith(), log.Nop())

	answer, err := a.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(answer, "token budget") {
		t.Errorf("answer = %q, want the token budget message", answer)
	}
}
