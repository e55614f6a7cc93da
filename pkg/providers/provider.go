// Package providers contains the model backends that turn a compiled context
// window into a streamed completion. Implementations report progress through
// a typed event stream and honor context cancellation; the caller decides
// what to do with the text.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
)

// Settings carries the sampling parameters for one generation. Nil fields
// mean "use the backend default".
type Settings struct {
	Temperature       *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxResponseTokens *int     `json:"max_response_tokens,omitempty" yaml:"max_response_tokens,omitempty"`
}

// Turn is one prior exchange in the compiled history.
type Turn struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
}

// Request is a fully compiled generation request. History is in
// chronological order and does not include the current user prompt.
type Request struct {
	Variant      string
	Instructions string
	UserPrompt   string
	History      []Turn
	Sampling     Settings

	// Correlation identifiers stamped onto the event stream.
	SessionID string
	ParentID  conversation.NodeID
}

// Receipt summarizes a finished generation.
type Receipt struct {
	Model      string
	Text       string
	Usage      events.Usage
	StopReason string
	Duration   time.Duration
}

// Provider streams a completion for the request, publishing start, partial,
// final, interrupt and error events as it goes. Publish may be nil. A nil
// error means the Receipt carries the final text; cancellation surfaces as
// the context's error.
type Provider interface {
	Complete(ctx context.Context, req *Request, publish func(events.Event)) (*Receipt, error)
}

// UpstreamError wraps a failure reported by the model backend, as opposed to
// local validation or budget failures.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func nopPublish(events.Event) {}

func ensurePublish(publish func(events.Event)) func(events.Event) {
	if publish == nil {
		return nopPublish
	}
	return publish
}
