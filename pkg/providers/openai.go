package providers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
)

type OpenAIProvider struct {
	client *openai.Client
}

type OpenAIOption func(*openai.ClientConfig)

func WithBaseURL(baseURL string) OpenAIOption {
	return func(cfg *openai.ClientConfig) {
		cfg.BaseURL = baseURL
	}
}

func NewOpenAIProvider(apiKey string, options ...OpenAIOption) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	for _, o := range options {
		o(&cfg)
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
	}
}

func makeChatCompletionRequest(req *Request) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{}
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, turn := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	ret := openai.ChatCompletionRequest{
		Model:    req.Variant,
		Messages: messages,
		Stream:   true,
	}
	if req.Sampling.Temperature != nil {
		ret.Temperature = float32(*req.Sampling.Temperature)
	}
	if req.Sampling.TopP != nil {
		ret.TopP = float32(*req.Sampling.TopP)
	}
	if req.Sampling.MaxResponseTokens != nil {
		ret.MaxTokens = *req.Sampling.MaxResponseTokens
	}

	return ret
}

func (p *OpenAIProvider) Complete(
	ctx context.Context,
	req *Request,
	publish func(events.Event),
) (*Receipt, error) {
	publish = ensurePublish(publish)

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

	stream, err := p.client.CreateChatCompletionStream(ctx, makeChatCompletionRequest(req))
	if err != nil {
		err = &UpstreamError{Provider: "openai", Err: err}
		publish(events.NewErrorEvent(metadata, err))
		return nil, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close completion stream")
		}
	}()

	message := ""
	stopReason := ""

	for {
		select {
		case <-ctx.Done():
			publish(events.NewInterruptEvent(metadata, message))
			return nil, ctx.Err()

		default:
			response, err := stream.Recv()

			if errors.Is(err, io.EOF) {
				duration := time.Since(start).Milliseconds()
				metadata.DurationMs = &duration
				if stopReason != "" {
					metadata.StopReason = &stopReason
				}
				publish(events.NewFinalEvent(metadata, message))
				return &Receipt{
					Model:      req.Variant,
					Text:       message,
					StopReason: stopReason,
					Duration:   time.Since(start),
				}, nil
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					publish(events.NewInterruptEvent(metadata, message))
					return nil, err
				}

				err = &UpstreamError{Provider: "openai", Err: err}
				publish(events.NewErrorEvent(metadata, err))
				return nil, err
			}

			delta := ""
			if len(response.Choices) > 0 {
				delta = response.Choices[0].Delta.Content
				message += delta
				if response.Choices[0].FinishReason != "" {
					stopReason = string(response.Choices[0].FinishReason)
				}
			}

			publish(events.NewPartialCompletionEvent(metadata, delta, message))
		}
	}
}

var _ Provider = &OpenAIProvider{}
