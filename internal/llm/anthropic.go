package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"pulsecorr/internal/config"
)

const defaultMaxTokens int64 = 1024

// AnthropicClassifier implements Classifier against the Anthropic Messages
// API, grounded on internal/llm/anthropic/client.go's construction pattern
// (API key / base URL / HTTP client options, default model fallback),
// trimmed to the single-turn, tool-free request this system needs.
type AnthropicClassifier struct {
	sdk    anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicClassifier builds a Classifier from loaded Anthropic config.
func NewAnthropicClassifier(cfg config.AnthropicConfig, httpClient *http.Client, logger zerolog.Logger) *AnthropicClassifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicClassifier{sdk: anthropic.NewClient(opts...), model: model, logger: logger}
}

func (c *AnthropicClassifier) Classify(ctx context.Context, in ClassifyInput) (Classification, error) {
	prompt := buildClassifyPrompt(in)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn().Err(err).Str("os", in.OS).Str("cluster_id", in.ClusterID).Msg("llm classify request failed")
		return Classification{Success: false, LatencyMS: latency.Milliseconds()}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	result, err := parseClassification(text.String())
	if err != nil {
		c.logger.Warn().Err(err).Str("os", in.OS).Str("cluster_id", in.ClusterID).Msg("llm classify response unparseable, degrading")
		return Classification{
			FailureType: "unknown",
			Summary:     "classification unavailable",
			Tokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			LatencyMS:   latency.Milliseconds(),
			Success:     false,
		}, nil
	}

	result.Tokens = int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	result.LatencyMS = latency.Milliseconds()
	result.Success = true
	return result, nil
}

func buildClassifyPrompt(in ClassifyInput) string {
	var b strings.Builder
	b.WriteString("You are triaging a cluster of correlated log lines from an IT monitoring pipeline.\n")
	fmt.Fprintf(&b, "OS: %s\nCluster: %s\n", in.OS, in.ClusterID)
	fmt.Fprintf(&b, "Representative line: %s\n", in.MedoidDoc)
	if in.Hypothesis != "" {
		fmt.Fprintf(&b, "Working hypothesis: %s\n", in.Hypothesis)
	}
	if len(in.Neighbors) > 0 {
		b.WriteString("Related cluster templates:\n")
		for _, n := range in.Neighbors {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	if len(in.Evidence) > 0 {
		b.WriteString("Evidence log lines:\n")
		for _, e := range in.Evidence {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	b.WriteString("\nRespond with a single JSON object with keys: failure_type, confidence (0-1), recommendation, summary. No prose outside the JSON.")
	return b.String()
}

type classifyResponse struct {
	FailureType    string  `json:"failure_type"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	Summary        string  `json:"summary"`
}

// parseClassification extracts the JSON object from the model's reply,
// tolerating surrounding prose and the occasional single-quoted object a
// model emits instead of valid JSON (the same repair fallback alerts.go
// uses for persisted alert JSON fields).
func parseClassification(text string) (Classification, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return Classification{}, fmt.Errorf("llm: no JSON object found in response")
	}
	candidate := text[start : end+1]

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		repaired := strings.ReplaceAll(candidate, "'", "\"")
		if err2 := json.Unmarshal([]byte(repaired), &parsed); err2 != nil {
			return Classification{}, fmt.Errorf("llm: parse classification JSON: %w", err)
		}
	}
	if parsed.FailureType == "" {
		return Classification{}, fmt.Errorf("llm: classification missing failure_type")
	}
	return Classification{
		FailureType:    parsed.FailureType,
		Confidence:     parsed.Confidence,
		Recommendation: parsed.Recommendation,
		Summary:        parsed.Summary,
	}, nil
}
