package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/civicsignal/docket-cli/internal/config"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/pkg/anthropic"
)

// Classifier is the external classification boundary: one call per unique
// text, identified by lookup id. Implementations must return ErrClassifyTimeout
// (possibly wrapped) on a per-call deadline so callers can distinguish
// timeouts from generic failures.
type Classifier interface {
	Classify(ctx context.Context, text, lookupID string) (*model.ClassificationResult, error)
}

// ErrClassifyTimeout marks a classification attempt that hit its deadline.
var ErrClassifyTimeout = eris.New("classify: call timed out")

// IsClassifyTimeout reports whether err is a per-call classification timeout.
func IsClassifyTimeout(err error) bool {
	return errors.Is(err, ErrClassifyTimeout) || errors.Is(err, context.DeadlineExceeded)
}

const classifySystemPrompt = `You analyze public comments submitted on a federal rulemaking docket. Classify each comment's stance toward the proposed rule as exactly one of: "For", "Against", "Neutral/Unclear". Select one or more themes from the provided list. Respond with a valid JSON object:
{"stance": "<stance>", "themes": ["<theme>", ...], "key_quote": "<short verbatim quote that best captures the position>", "rationale": "<one sentence explaining the classification>"}`

const classifyUserPrompt = `Available themes: %s

Comment %s:
%s`

// StanceClassifier classifies comment texts with a single Claude call per
// unique text. The system prompt carries a cache breakpoint so every call
// after the first reads the warm prompt cache.
type StanceClassifier struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
	themes []string

	// usageMu guards usage: Classify runs on every scheduler worker
	// concurrently.
	usageMu sync.Mutex
	usage   anthropic.TokenUsage
}

// NewStanceClassifier builds a classifier from the anthropic client and
// config. An empty themes list falls back to the default vocabulary.
func NewStanceClassifier(client anthropic.Client, cfg config.AnthropicConfig, themes []string) *StanceClassifier {
	if len(themes) == 0 {
		themes = model.DefaultThemes
	}
	return &StanceClassifier{client: client, cfg: cfg, themes: themes}
}

// Usage returns accumulated token usage across all calls.
func (c *StanceClassifier) Usage() anthropic.TokenUsage {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	return c.usage
}

// Classify sends one classification request. The ctx passed in is expected
// to carry the per-call deadline; on expiry the returned error wraps
// ErrClassifyTimeout.
func (c *StanceClassifier) Classify(ctx context.Context, text, lookupID string) (*model.ClassificationResult, error) {
	temp := c.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(classifySystemPrompt),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(classifyUserPrompt, strings.Join(c.themes, ", "), lookupID, text)},
		},
	}

	resp, err := c.client.CreateMessage(ctx, req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, eris.Wrapf(ErrClassifyTimeout, "entry %s", lookupID)
		}
		return nil, eris.Wrapf(err, "classify: entry %s", lookupID)
	}
	c.usageMu.Lock()
	c.usage.Add(resp.Usage)
	c.usageMu.Unlock()

	result, err := parseClassification(anthropic.ExtractText(resp))
	if err != nil {
		return nil, eris.Wrapf(err, "classify: entry %s", lookupID)
	}
	return result, nil
}

// parseClassification decodes the model's JSON reply into a validated
// ClassificationResult.
func parseClassification(text string) (*model.ClassificationResult, error) {
	text = cleanJSON(text)

	var raw struct {
		Stance    string   `json:"stance"`
		Themes    []string `json:"themes"`
		KeyQuote  string   `json:"key_quote"`
		Rationale string   `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "parse classification reply")
	}

	if !model.ValidStance(raw.Stance) {
		return nil, eris.Errorf("unknown stance %q", raw.Stance)
	}

	return &model.ClassificationResult{
		Stance:    model.Stance(raw.Stance),
		Themes:    raw.Themes,
		KeyQuote:  raw.KeyQuote,
		Rationale: raw.Rationale,
	}, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
