// Package oracle adapts external inference into typed, always-valid
// results. Every call either succeeds or degrades to a documented default;
// the pipeline never sees an error from this package.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/ecotrace/internal/config"
	"github.com/thebtf/ecotrace/internal/search"
	"github.com/thebtf/ecotrace/pkg/abtest"
	"github.com/thebtf/ecotrace/pkg/models"
)

// ClassificationResult is a classification that is either the model's
// answer or the documented default. Degraded marks the default path.
type ClassificationResult struct {
	models.Classification
	Degraded bool
}

// EstimationOutcome is an estimate or the documented default.
type EstimationOutcome struct {
	models.EstimationResult
	Degraded bool
}

// SuggestionOutcome is a suggestion list, empty when degraded.
type SuggestionOutcome struct {
	Suggestions []string
	Degraded    bool
}

// QuoteOutcome is a quote or the documented fallback.
type QuoteOutcome struct {
	models.Quote
	Degraded bool
}

// Searcher provides grounding snippets for estimation prompts.
type Searcher interface {
	Snippets(ctx context.Context, query string) string
}

// Client calls an OpenAI-compatible chat completions endpoint and shapes
// the responses into domain results.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxTokens     int
	timeout       time.Duration
	snippetBudget int

	httpClient  *http.Client
	searcher    Searcher
	cache       *classificationCache
	experiments *abtest.Registry
	codec       tokenizer.Codec
}

// NewClient creates an oracle client from config. The searcher grounds
// estimates; pass search.NewClient for production use.
func NewClient(cfg *config.Config, searcher Searcher, experiments *abtest.Registry) *Client {
	timeout := time.Duration(cfg.OracleTimeoutSecs) * time.Second

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, using character-based truncation")
		codec = nil
	}

	if experiments == nil {
		experiments = abtest.NewRegistry()
	}
	experiments.Register(SuggestionExperiment, SuggestionVariants)

	return &Client{
		baseURL:       strings.TrimRight(cfg.OracleBaseURL, "/"),
		apiKey:        cfg.OracleAPIKey,
		model:         cfg.OracleModel,
		maxTokens:     cfg.OracleMaxTokens,
		timeout:       timeout,
		snippetBudget: cfg.SnippetTokenBudget,
		httpClient:    &http.Client{Timeout: timeout},
		searcher:      searcher,
		cache:         newClassificationCache(cfg.RedisAddr),
		experiments:   experiments,
		codec:         codec,
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.cache.close()
}

// Classify buckets an item into a category. Degrades to {Other, 0}.
func (c *Client) Classify(ctx context.Context, itemName string) ClassificationResult {
	if cls, ok := c.cache.get(itemName); ok {
		return ClassificationResult{Classification: cls}
	}

	content, err := c.complete(ctx, buildClassifyPrompt(itemName))
	if err != nil {
		log.Warn().Err(err).Str("item", itemName).Msg("Classification degraded to default")
		return ClassificationResult{Classification: models.DefaultClassification(), Degraded: true}
	}

	var decoded struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &decoded); err != nil {
		log.Warn().Err(err).Str("item", itemName).Msg("Classification parse failed, degraded to default")
		return ClassificationResult{Classification: models.DefaultClassification(), Degraded: true}
	}

	cls := models.Classification{
		Category:   models.ParseCategory(decoded.Category),
		Confidence: decoded.Confidence,
	}
	c.cache.put(itemName, cls)
	return ClassificationResult{Classification: cls}
}

// Estimate computes total CO2e for an item using the classified category
// and best-effort search grounding. Degrades to {0, 0, "Error"}.
func (c *Client) Estimate(ctx context.Context, item models.Item, category models.Category) EstimationOutcome {
	snippets := ""
	if c.searcher != nil {
		query := search.EmissionFactorQuery(item.Name, string(category), item.Unit)
		snippets = c.truncateToBudget(c.searcher.Snippets(ctx, query))
	}

	content, err := c.complete(ctx, buildEstimatePrompt(item, category, snippets))
	if err != nil {
		log.Warn().Err(err).Str("item", item.Name).Msg("Estimation degraded to default")
		return EstimationOutcome{EstimationResult: models.DefaultEstimation(), Degraded: true}
	}

	var decoded models.EstimationResult
	if err := json.Unmarshal([]byte(stripFences(content)), &decoded); err != nil {
		log.Warn().Err(err).Str("item", item.Name).Msg("Estimation parse failed, degraded to default")
		return EstimationOutcome{EstimationResult: models.DefaultEstimation(), Degraded: true}
	}
	if decoded.CO2eKg < 0 {
		log.Warn().Float64("co2e_kg", decoded.CO2eKg).Str("item", item.Name).Msg("Negative estimate rejected, degraded to default")
		return EstimationOutcome{EstimationResult: models.DefaultEstimation(), Degraded: true}
	}

	return EstimationOutcome{EstimationResult: decoded}
}

// Suggest generates eco-friendly alternatives personalized by the user's
// context. Degrades to an empty list.
func (c *Client) Suggest(ctx context.Context, itemName string, userCtx *models.UserContext, userID string) SuggestionOutcome {
	variant := c.experiments.Variant(SuggestionExperiment, userID)

	content, err := c.complete(ctx, buildSuggestPrompt(itemName, userCtx, variant))
	if err != nil {
		log.Warn().Err(err).Str("item", itemName).Msg("Suggestions degraded to empty")
		return SuggestionOutcome{Suggestions: []string{}, Degraded: true}
	}

	var decoded struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &decoded); err != nil {
		log.Warn().Err(err).Str("item", itemName).Msg("Suggestion parse failed, degraded to empty")
		return SuggestionOutcome{Suggestions: []string{}, Degraded: true}
	}
	if decoded.Suggestions == nil {
		decoded.Suggestions = []string{}
	}

	return SuggestionOutcome{Suggestions: decoded.Suggestions}
}

// Quote generates an inspirational sustainability quote with a tip.
// Degrades to a fixed fallback quote.
func (c *Client) Quote(ctx context.Context) QuoteOutcome {
	content, err := c.complete(ctx, buildQuotePrompt())
	if err != nil {
		log.Warn().Err(err).Msg("Quote degraded to fallback")
		return QuoteOutcome{Quote: models.DefaultQuote(), Degraded: true}
	}

	var decoded models.Quote
	if err := json.Unmarshal([]byte(stripFences(content)), &decoded); err != nil {
		log.Warn().Err(err).Msg("Quote parse failed, degraded to fallback")
		return QuoteOutcome{Quote: models.DefaultQuote(), Degraded: true}
	}
	if decoded.Quote == "" {
		return QuoteOutcome{Quote: models.DefaultQuote(), Degraded: true}
	}

	return QuoteOutcome{Quote: decoded}
}

// complete sends one chat completion request and returns the first choice.
// Each call carries its own timeout so a stuck upstream bounds to the
// configured deadline instead of stalling the whole batch.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("missing oracle api key")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("missing oracle base url")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":  c.maxTokens,
		"temperature": 0.3,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("oracle http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}

// truncateToBudget bounds grounding snippets to the configured token
// budget so estimation prompts stay within model limits.
func (c *Client) truncateToBudget(s string) string {
	if s == "" || c.snippetBudget <= 0 {
		return s
	}

	if c.codec == nil {
		// Rough 4 chars/token fallback
		limit := c.snippetBudget * 4
		if len(s) > limit {
			return s[:limit]
		}
		return s
	}

	ids, _, err := c.codec.Encode(s)
	if err != nil || len(ids) <= c.snippetBudget {
		return s
	}
	truncated, err := c.codec.Decode(ids[:c.snippetBudget])
	if err != nil {
		return s
	}
	return truncated
}
