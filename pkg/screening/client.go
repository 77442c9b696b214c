// Package screening wraps the Anthropic API for the two LLM collaborations
// in the pipeline: turning free-text job requirements into structured
// filters, and scoring parsed candidate profiles against them.
package screening

import (
	"context"
	"errors"
	"strconv"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// Client defines the screening operations used by the pipeline.
type Client interface {
	// FormatRequirements extracts structured filters from a free-text
	// job description.
	FormatRequirements(ctx context.Context, rawText string) (*model.JobFilters, error)
	// ScoreProfile scores one parsed profile against the job filters.
	// The returned breakdown has every sub-score clamped to [0, 100] and
	// MatchScore already aggregated with the configured weights.
	ScoreProfile(ctx context.Context, profile *model.CandidateProfile, filters *model.JobFilters) (*model.ScoreBreakdown, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    string
	Prompt    string
}

// MessageResponse carries the text content and token usage of one call.
type MessageResponse struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Messenger is the one-shot message operation the screener needs from the
// Anthropic API. Tests substitute a fake.
type Messenger interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// sdkMessenger implements Messenger using the official anthropic-sdk-go.
type sdkMessenger struct {
	client sdk.Client
}

// NewMessenger creates a Messenger backed by the SDK.
func NewMessenger(apiKey string) Messenger {
	return &sdkMessenger{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (m *sdkMessenger) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	resp := &MessageResponse{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			resp.Text = block.Text
			break
		}
	}

	zap.L().Debug("screening message",
		zap.String("model", req.Model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
	)
	return resp, nil
}

// classify maps SDK failures onto the pipeline's error taxonomy: 429
// pauses the whole job, 5xx and transport errors are retried in place.
func classify(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return resilience.NewRateLimitError(resilience.CapabilityScreening, resetAtFromHeaders(apierr))
		case resilience.IsTransientHTTPStatus(apierr.StatusCode):
			return resilience.NewTransientError(err, apierr.StatusCode)
		}
		return eris.Wrap(err, "screening: api error")
	}
	return resilience.NewTransientError(eris.Wrap(err, "screening: request"), 0)
}

// resetAtFromHeaders reads the reset hint the API attaches to 429s.
// Zero time lets the error constructor apply its default cooldown.
func resetAtFromHeaders(apierr *sdk.Error) time.Time {
	if apierr.Response == nil {
		return time.Time{}
	}
	h := apierr.Response.Header
	if v := h.Get("retry-after"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	if v := h.Get("anthropic-ratelimit-requests-reset"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
