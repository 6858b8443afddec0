package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/docket-cli/internal/config"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func TestStanceClassifierParsesReply(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"stance": "Against", "themes": ["Economic impact / cost"], "key_quote": "this will ruin us", "rationale": "Commenter cites costs."}`), nil)

	c := NewStanceClassifier(client, config.AnthropicConfig{Model: "m", MaxTokens: 1024}, nil)
	result, err := c.Classify(context.Background(), "some comment", "lookup_000001")
	require.NoError(t, err)

	assert.Equal(t, model.StanceAgainst, result.Stance)
	assert.Equal(t, []string{"Economic impact / cost"}, result.Themes)
	assert.Equal(t, "this will ruin us", result.KeyQuote)
	assert.Equal(t, int64(100), c.Usage().InputTokens)
	client.AssertExpectations(t)
}

func TestStanceClassifierRejectsUnknownStance(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"stance": "Maybe", "themes": [], "key_quote": "", "rationale": ""}`), nil)

	c := NewStanceClassifier(client, config.AnthropicConfig{}, nil)
	_, err := c.Classify(context.Background(), "text", "lookup_000001")
	assert.ErrorContains(t, err, "unknown stance")
}

func TestStanceClassifierTimeout(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	c := NewStanceClassifier(client, config.AnthropicConfig{}, nil)
	_, err := c.Classify(ctx, "text", "lookup_000001")
	require.Error(t, err)
	assert.True(t, IsClassifyTimeout(err))
}

func TestStanceClassifierPromptIncludesThemesAndID(t *testing.T) {
	client := new(mockAnthropic)
	var captured anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(`{"stance": "For", "themes": [], "key_quote": "", "rationale": ""}`), nil)

	c := NewStanceClassifier(client, config.AnthropicConfig{Model: "m"}, []string{"Theme A", "Theme B"})
	_, err := c.Classify(context.Background(), "the comment body", "lookup_000042")
	require.NoError(t, err)

	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "Theme A, Theme B")
	assert.Contains(t, captured.Messages[0].Content, "lookup_000042")
	assert.Contains(t, captured.Messages[0].Content, "the comment body")
	require.NotEmpty(t, captured.System)
	require.NotNil(t, captured.System[len(captured.System)-1].CacheControl)
}

func TestStanceClassifierConcurrentUsage(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"stance": "For", "themes": [], "key_quote": "", "rationale": ""}`), nil)

	c := NewStanceClassifier(client, config.AnthropicConfig{Model: "m"}, nil)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Classify(context.Background(), "text", "lookup_000001")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usage := c.Usage()
	assert.Equal(t, int64(workers*100), usage.InputTokens)
	assert.Equal(t, int64(workers*50), usage.OutputTokens)
}

func TestParseClassification(t *testing.T) {
	result, err := parseClassification(`{"stance": "Neutral/Unclear", "themes": ["Other"], "key_quote": "q", "rationale": "r"}`)
	require.NoError(t, err)
	assert.Equal(t, model.StanceNeutral, result.Stance)

	_, err = parseClassification("not json at all")
	assert.Error(t, err)
}

func TestCleanJSON(t *testing.T) {
	want := `{"stance": "For"}`

	assert.Equal(t, want, cleanJSON(want))
	assert.Equal(t, want, cleanJSON("```json\n"+want+"\n```"))
	assert.Equal(t, want, cleanJSON("```\n"+want+"\n```"))
	assert.Equal(t, want, cleanJSON("Here is the classification:\n"+want+"\nLet me know."))
}
