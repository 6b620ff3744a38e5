// Package llmgw is the LM Gateway: the single chokepoint every stage engine
// calls through to reach a model provider. It acquires the process-wide
// LM-slot semaphore it is given (built by internal/concurrency) and owns the
// strict-JSON parse-and-repair ladder and masked-auth trace logging, grounded on the teacher's internal/llm/provider.go Provider
// abstraction and internal/llm/completions.go CallLLM shape.
package llmgw

import "context"

// Message is a single turn in a chat-style completion request.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// CompletionRequest is what a Provider needs to produce one completion.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is implemented by each concrete model backend (OpenAI, Anthropic).
// Stage engines never talk to a Provider directly — only through Gateway.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}
