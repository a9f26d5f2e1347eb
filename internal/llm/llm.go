// Package llm defines the text-in/text-out contract the pipeline's AI
// stages consume. Concrete backends live in subpackages.
package llm

import "context"

// Provider is the interface for any LLM backend. Complete sends a system
// prompt plus a single user prompt and returns the model's text output.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
