package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

//go:generate mockgen -source=model.go -destination=model_mock.go -package=extraction

// ModelClient sends a prompt to a generative model and returns its raw text
// reply. Implementations must honour ctx cancellation.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	Retry           RetryConfig
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

// NewGeminiClient creates a Gemini client, filling unset fields with defaults.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Generate implements ModelClient.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &ExtractionError{
			Code:    ErrModelUnavailable,
			Message: "Gemini API key not configured",
			Method:  "gemini",
		}
	}
	return WithRetry(ctx, c.cfg.Retry, func(ctx context.Context) (string, error) {
		return c.callGemini(ctx, prompt)
	})
}

func (c *GeminiClient) callGemini(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      c.cfg.Temperature,
			"maxOutputTokens":  c.cfg.MaxOutputTokens,
			"responseMimeType": "application/json",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyGeminiError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyGeminiHTTPError(resp.StatusCode, string(respBody[:min(len(respBody), 500)]))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", &ExtractionError{
			Code:    ErrMalformedResponse,
			Message: "parse Gemini response envelope",
			Method:  "gemini",
			Cause:   err,
		}
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &ExtractionError{
			Code:    ErrModelEmptyResponse,
			Message: "empty Gemini response",
			Method:  "gemini",
		}
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// classifyGeminiError converts transport failures to ExtractionErrors.
func classifyGeminiError(err error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrModelUnavailable,
		Message:   "Gemini API request failed",
		Method:    "gemini",
		Retryable: true,
		Cause:     err,
	}
}

// classifyGeminiHTTPError converts Gemini HTTP errors to ExtractionErrors.
func classifyGeminiHTTPError(statusCode int, body string) *ExtractionError {
	if statusCode == http.StatusTooManyRequests {
		return &ExtractionError{
			Code:      ErrModelRateLimited,
			Message:   "Gemini API rate limited",
			Method:    "gemini",
			Retryable: true,
		}
	}
	return &ExtractionError{
		Code:      ErrModelUnavailable,
		Message:   fmt.Sprintf("Gemini API error (HTTP %d): %s", statusCode, body),
		Method:    "gemini",
		Retryable: statusCode >= 500,
	}
}
