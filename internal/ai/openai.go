package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/pkg/config"
	"github.com/wonny/vigil/pkg/httputil"
	"github.com/wonny/vigil/pkg/logger"
	"github.com/wonny/vigil/pkg/redis"
)

const systemPrompt = `You are a trading analyst. Analyze the market data using the user's
instruction and reply with a single JSON object:
{"signal": one of STRONG_BUY|BUY|WAIT|SELL|STRONG_SELL,
 "message": short reasoning,
 "holding_duration": expected holding horizon in plain words}`

// Client talks to an OpenAI-compatible chat-completions endpoint.
// Per-instrument provider rows override the config defaults.
// ⭐ SSOT: AI 분석 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	defaults   config.AIConfig
	limiter    *redis.RateLimiter
	logger     *logger.Logger
}

// NewClient creates a new analyzer client. limiter may be nil when no
// cross-process throttle is wanted.
func NewClient(httpClient *httputil.Client, defaults config.AIConfig, limiter *redis.RateLimiter, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		defaults:   defaults,
		limiter:    limiter,
		logger:     log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Analyze sends the market data and prompt to the model and extracts
// the structured analysis. The raw response text is always returned
// for the run log, even on parse failure.
func (c *Client) Analyze(ctx context.Context, data, prompt string, provider *instrument.AIProvider) (Analysis, string, error) {
	baseURL, apiKey, model := c.resolve(provider)
	if apiKey == "" {
		return Analysis{}, "", fmt.Errorf("no API key configured for provider")
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt + "\n\nMarket data:\n" + data},
		},
	}

	url := strings.TrimRight(baseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + apiKey}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, redis.AIRateLimit); err != nil {
			return Analysis{}, "", fmt.Errorf("analyzer rate limit wait failed: %w", err)
		}
	}

	resp, err := c.httpClient.PostJSON(ctx, url, req, headers)
	if err != nil {
		return Analysis{}, "", fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Analysis{}, "", fmt.Errorf("failed to read analyzer response: %w", err)
	}

	raw := string(body)

	if resp.StatusCode != http.StatusOK {
		return Analysis{}, raw, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Analysis{}, raw, fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	if parsed.Error != nil {
		return Analysis{}, raw, fmt.Errorf("analyzer error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Analysis{}, raw, fmt.Errorf("analyzer returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	analysis, err := extractAnalysis(content)
	if err != nil {
		// Downstream canonicalization degrades an unparsable answer
		// to WAIT; keep the text so the operator can audit it.
		c.logger.WithError(err).Warn("Analyzer answer not structured, using raw text")
		return Analysis{Message: content}, content, nil
	}

	return analysis, content, nil
}

// resolve merges a provider row with the config defaults.
func (c *Client) resolve(provider *instrument.AIProvider) (baseURL, apiKey, model string) {
	baseURL = c.defaults.BaseURL
	apiKey = c.defaults.APIKey
	model = c.defaults.Model

	if provider != nil {
		if provider.BaseURL != "" {
			baseURL = provider.BaseURL
		}
		if provider.APIKey != "" {
			apiKey = provider.APIKey
		}
		if provider.Model != "" {
			model = provider.Model
		}
	}

	return baseURL, apiKey, model
}

// extractAnalysis pulls the JSON object out of a model answer that
// may be wrapped in code fences or prose.
func extractAnalysis(content string) (Analysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Analysis{}, fmt.Errorf("no JSON object in answer")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("failed to decode analysis JSON: %w", err)
	}

	return analysis, nil
}
