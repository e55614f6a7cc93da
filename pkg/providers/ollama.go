package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
)

type OllamaProvider struct {
	client *api.Client
}

func NewOllamaProvider(client *api.Client) *OllamaProvider {
	return &OllamaProvider{
		client: client,
	}
}

func NewOllamaProviderFromEnvironment() (*OllamaProvider, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return NewOllamaProvider(client), nil
}

func makeOllamaOptions(s Settings) map[string]interface{} {
	options := map[string]interface{}{}
	if s.Temperature != nil {
		options["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		options["top_p"] = *s.TopP
	}
	if s.MaxResponseTokens != nil {
		options["num_predict"] = *s.MaxResponseTokens
	}
	return options
}

func (p *OllamaProvider) Complete(
	ctx context.Context,
	req *Request,
	publish func(events.Event),
) (*Receipt, error) {
	publish = ensurePublish(publish)

	ollamaMessages := []api.Message{}
	if req.Instructions != "" {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(conversation.RoleSystem),
			Content: req.Instructions,
		})
	}
	for _, turn := range req.History {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	ollamaMessages = append(ollamaMessages, api.Message{
		Role:    string(conversation.RoleUser),
		Content: req.UserPrompt,
	})

	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Variant,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options:  makeOllamaOptions(req.Sampling),
	}

	metadata := events.EventMetadata{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		NodeID:    conversation.ProvisionalID,
		ParentID:  req.ParentID,
		GenerationData: events.GenerationData{
			Model: req.Variant,
		},
	}

	start := time.Now()
	publish(events.NewStartEvent(metadata))

	message := ""

	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Done {
			duration := time.Since(start).Milliseconds()
			metadata.DurationMs = &duration
			publish(events.NewFinalEvent(metadata, message))
			return nil
		}

		message += resp.Message.Content

		publish(events.NewPartialCompletionEvent(metadata, resp.Message.Content, message))

		return nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			publish(events.NewInterruptEvent(metadata, message))
			return nil, err
		}

		err = &UpstreamError{Provider: "ollama", Err: err}
		publish(events.NewErrorEvent(metadata, err))
		return nil, err
	}

	return &Receipt{
		Model:    req.Variant,
		Text:     message,
		Duration: time.Since(start),
	}, nil
}

var _ Provider = &OllamaProvider{}
