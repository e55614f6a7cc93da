package providers

import (
	"testing"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/helpers"
)

func TestMakeChatCompletionRequest(t *testing.T) {
	req := &Request{
		Variant:      "gpt-4o",
		Instructions: "be brief",
		UserPrompt:   "and now?",
		History: []Turn{
			{Role: conversation.RoleUser, Content: "hello"},
			{Role: conversation.RoleAssistant, Content: "hi"},
		},
		Sampling: Settings{
			Temperature:       helpers.Float64Pointer(0.2),
			MaxResponseTokens: helpers.IntPointer(512),
		},
	}

	ccr := makeChatCompletionRequest(req)

	assert.Equal(t, "gpt-4o", ccr.Model)
	assert.True(t, ccr.Stream)
	assert.InDelta(t, 0.2, ccr.Temperature, 0.001)
	assert.Equal(t, 512, ccr.MaxTokens)

	require.Len(t, ccr.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, ccr.Messages[0].Role)
	assert.Equal(t, "be brief", ccr.Messages[0].Content)
	assert.Equal(t, "user", ccr.Messages[1].Role)
	assert.Equal(t, "assistant", ccr.Messages[2].Role)
	assert.Equal(t, "and now?", ccr.Messages[3].Content)
}

func TestMakeChatCompletionRequestNoInstructions(t *testing.T) {
	ccr := makeChatCompletionRequest(&Request{Variant: "gpt-4", UserPrompt: "hi"})

	require.Len(t, ccr.Messages, 1)
	assert.Equal(t, "user", ccr.Messages[0].Role)
}

func TestMakeOllamaOptions(t *testing.T) {
	options := makeOllamaOptions(Settings{
		Temperature: helpers.Float64Pointer(0.7),
		TopP:        helpers.Float64Pointer(0.9),
	})

	assert.Equal(t, 0.7, options["temperature"])
	assert.Equal(t, 0.9, options["top_p"])
	assert.NotContains(t, options, "num_predict")

	assert.Empty(t, makeOllamaOptions(Settings{}))
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &UpstreamError{Provider: "ollama", Err: cause}

	assert.Equal(t, "ollama: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}
