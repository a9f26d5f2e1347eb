// Package analytics answers natural-language questions about the stored
// helpdesk requests. The agent hands the model a set of query tools and
// loops until the model stops asking for tool calls or a budget runs out.
package analytics

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/llm"
	"github.com/linnemanlabs/helpdesk/internal/tools"
)

const (
	MaxToolRounds  = 15
	MaxTokens      = 50000
	ResponseTokens = 4096
)

const instructions = `You are a helpdesk analytics assistant. You help users understand their helpdesk request data by answering questions.

IMPORTANT TERMINOLOGY:
- Use "requests" not "tickets" as the general term
- Different action types exist based on ActionHint:
  * "notify-team": requests that notify a Teams channel
  * "create-task": requests that create task board entries
  * "create-ticket": requests that create support tickets via the workflow trigger
  * "store-only": requests that are just stored without actions
- Only use "ticket" when specifically referring to "create-ticket" action type

Available data includes:
- Categories: HR, IT, Finance, Operations, Other
- Priority levels: Low, Normal, High
- Action types (ActionHint): notify-team, create-task, create-ticket, store-only
- Timestamps and recent activity

When answering:
1. Use the provided tools to query the data
2. Be precise with terminology - distinguish between requests, tasks, and tickets
3. Provide clear, specific numbers and breakdowns
4. Format responses in a friendly, conversational way
5. If asked about trends or comparisons, provide context
6. If multiple tools are needed, use them to build a complete answer

Be helpful, accurate, and insightful!`

// Agent runs the analytics conversation against a chat provider.
type Agent struct {
	provider llm.ChatProvider
	registry *tools.Registry
	logger   log.Logger
}

// New creates an analytics agent with the given provider and tool registry.
func New(provider llm.ChatProvider, registry *tools.Registry, logger log.Logger) *Agent {
	if logger == nil {
		logger = log.Nop()
	}
	return &Agent{
		provider: provider,
		registry: registry,
		logger:   logger,
	}
}

// Ask answers a question about the stored requests. Provider failures do
// not surface as errors: the caller gets an apologetic answer it can show
// to the user as-is.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	L := a.logger.With("question_len", len(question))

	messages := []llm.Message{
		{Role: "user", Content: []llm.ContentBlock{
			{Type: "text", Text: question},
		}},
	}

	var totalTokens int
	var totalToolCalls int
	answer := ""

	for {
		if totalToolCalls >= MaxToolRounds {
			L.Warn(ctx, "analytics hit tool call limit", "limit", MaxToolRounds)
			return "I could not finish analyzing the data within the tool call budget. Please try a narrower question.", nil
		}
		if totalTokens >= MaxTokens {
			L.Warn(ctx, "analytics hit token limit", "limit", MaxTokens)
			return "I could not finish analyzing the data within the token budget. Please try a narrower question.", nil
		}

		resp, err := a.provider.Send(ctx, &llm.ChatRequest{
			MaxTokens: ResponseTokens,
			System:    instructions,
			Messages:  messages,
			Tools:     a.registry.ToToolDefs(),
		})
		if err != nil {
			L.Error(ctx, err, "analytics llm call failed")
			return fmt.Sprintf("I encountered an error while analyzing the data: %v. Please try rephrasing your question.", err), nil
		}

		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		L.Info(ctx, "llm response",
			"stop_reason", resp.StopReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"total_tokens", totalTokens,
		)

		messages = append(messages, llm.Message{
			Role:    "assistant",
			Content: resp.Content,
		})

		if resp.StopReason == llm.StopEnd {
			for _, block := range resp.Content {
				if block.Type == "text" {
					answer = block.Text
				}
			}
			break
		}

		if resp.StopReason == llm.StopToolUse {
			var toolResults []llm.ContentBlock

			for _, block := range resp.Content {
				if block.Type != "tool_use" {
					continue
				}

				totalToolCalls++
				L.Info(ctx, "executing tool",
					"tool", block.Name,
					"call_number", totalToolCalls,
				)

				tool, ok := a.registry.Get(block.Name)
				if !ok {
					toolResults = append(toolResults, llm.ContentBlock{
						Type:      "tool_result",
						ToolUseID: block.ID,
						Content:   fmt.Sprintf("unknown tool: %s", block.Name),
						IsError:   true,
					})
					continue
				}

				output, err := tool.Execute(ctx, block.Input)
				if err != nil {
					L.Error(ctx, err, "tool execution failed", "tool", block.Name)
					toolResults = append(toolResults, llm.ContentBlock{
						Type:      "tool_result",
						ToolUseID: block.ID,
						Content:   fmt.Sprintf("tool error: %v", err),
						IsError:   true,
					})
					continue
				}

				toolResults = append(toolResults, llm.ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   string(output),
				})
			}

			messages = append(messages, llm.Message{
				Role:    "user",
				Content: toolResults,
			})
		}
	}

	L.Info(ctx, "analytics complete",
		"tokens", totalTokens,
		"tool_calls", totalToolCalls,
	)
	return answer, nil
}
