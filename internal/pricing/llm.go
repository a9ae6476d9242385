package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultLLMBaseURL       = "https://api.openai.com/v1"
	defaultLLMModel         = "gpt-4o-mini"
	responseBodyReadLimit   = 1 << 16
	errorBodyReadLimit      = 1024
	llmPromptTemplate       = "Analyze the following email content and extract the total price quote.\nYour response MUST be only a valid JSON object. Do not include any other text.\n\nIf a price is found, respond with: {\"price\": 1234.56}\nIf no price quote is mentioned, respond with: {\"price\": null}\n\nEmail content to analyze:\n---\n%s\n---"
	maxPromptBodyCharacters = 8000
)

var (
	errLLMKeyRequired = errors.New("openai api key is required")
	codeFence         = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// LLMExtractor asks a chat-completions model to pull the price out of a reply.
type LLMExtractor struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
}

// LLMOption configures optional extractor behavior.
type LLMOption func(*LLMExtractor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) LLMOption {
	return func(e *LLMExtractor) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithBaseURL points the extractor at a compatible endpoint.
func WithBaseURL(baseURL string) LLMOption {
	return func(e *LLMExtractor) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			e.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithModel selects the chat model.
func WithModel(model string) LLMOption {
	return func(e *LLMExtractor) {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			e.model = trimmed
		}
	}
}

// WithRequestsPerMinute throttles outbound calls. Zero leaves calls unthrottled.
func WithRequestsPerMinute(n int) LLMOption {
	return func(e *LLMExtractor) {
		if n > 0 {
			e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// NewLLMExtractor builds the extractor given an API key.
func NewLLMExtractor(apiKey string, opts ...LLMOption) (*LLMExtractor, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errLLMKeyRequired
	}
	e := &LLMExtractor{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    defaultLLMBaseURL,
		apiKey:     trimmedKey,
		model:      defaultLLMModel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type pricePayload struct {
	Price *json.Number `json:"price"`
}

func (e *LLMExtractor) ExtractPrice(ctx context.Context, text string) (decimal.NullDecimal, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("llm rate limit: %w", err)
		}
	}
	if len(text) > maxPromptBodyCharacters {
		text = text[:maxPromptBodyCharacters]
	}

	payload, err := json.Marshal(chatRequest{
		Model:    e.model,
		Messages: []chatMessage{{Role: "user", Content: fmt.Sprintf(llmPromptTemplate, text)}},
	})
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("execute llm request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return decimal.NullDecimal{}, fmt.Errorf("llm request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chat chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&chat); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("decode llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return decimal.NullDecimal{}, errors.New("llm response had no choices")
	}
	return parseModelAnswer(chat.Choices[0].Message.Content)
}

func parseModelAnswer(content string) (decimal.NullDecimal, error) {
	clean := strings.TrimSpace(content)
	if match := codeFence.FindStringSubmatch(clean); match != nil {
		clean = match[1]
	}
	var answer pricePayload
	if err := json.Unmarshal([]byte(clean), &answer); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("decode model answer %q: %w", clean, err)
	}
	if answer.Price == nil {
		return decimal.NullDecimal{}, nil
	}
	price, err := decimal.NewFromString(answer.Price.String())
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse model price: %w", err)
	}
	return decimal.NewNullDecimal(price.Round(2)), nil
}
