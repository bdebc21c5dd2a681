package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"

	defaultTimeout = 60 * time.Second
	defaultRetries = 2
	defaultBackoff = 1 * time.Second

	temperature     = 0.7
	maxOutputTokens = 4096
)

// ClientConfig configures a Gemini client. Zero values fall back to the
// interactive-chat defaults; report generation passes a longer Timeout.
type ClientConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overridden in tests
	Timeout time.Duration
	Retries int // additional attempts after the first
	Backoff time.Duration
}

// Client calls the Gemini generateContent endpoint with a bounded timeout and
// limited retry. Retries apply only to connection errors and timeouts; a
// returned body, however broken, is never re-requested.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	retries int
	backoff time.Duration
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// --- Gemini wire types ---

type generateRequest struct {
	Contents          []*genai.Content `json:"contents"`
	SystemInstruction *genai.Content   `json:"system_instruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float32 `json:"temperature"`
	ResponseMIMEType string  `json:"response_mime_type"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate performs the model call and returns the raw text of the first
// candidate. All failures are *TransportFailure.
func (c *Client) Generate(ctx context.Context, p *Prompt) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:          p.Contents,
		SystemInstruction: p.System,
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			ResponseMIMEType: "application/json",
			MaxOutputTokens:  maxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr *TransportFailure
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.log.Warn("retrying model call",
				zap.Int("attempt", attempt+1),
				zap.String("kind", string(lastErr.Kind)),
				zap.Error(lastErr.Err))
			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(c.backoff):
			}
		}

		text, tf := c.doRequest(ctx, url, body)
		if tf == nil {
			return text, nil
		}
		lastErr = tf
		if !tf.retryable() {
			return "", tf
		}
	}
	return "", lastErr
}

func (c *Client) doRequest(ctx context.Context, url string, body []byte) (string, *TransportFailure) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &TransportFailure{Kind: TransportConnection, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportFailure{
			Kind:   TransportServiceError,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("gemini: status %d: %s", resp.StatusCode, preview(string(respBody), 200)),
		}
	}

	// The text must sit at candidates[0].content.parts[0].text. Anything
	// else on the outer envelope is a transport-level fault, not a
	// malformed reply body.
	var envelope generateResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", &TransportFailure{
			Kind:   TransportServiceError,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("gemini: undecodable envelope: %w", err),
		}
	}
	if len(envelope.Candidates) == 0 ||
		len(envelope.Candidates[0].Content.Parts) == 0 ||
		envelope.Candidates[0].Content.Parts[0].Text == "" {
		return "", &TransportFailure{
			Kind:   TransportServiceError,
			Status: resp.StatusCode,
			Err:    errors.New("gemini: response envelope missing candidate text"),
		}
	}

	return envelope.Candidates[0].Content.Parts[0].Text, nil
}
