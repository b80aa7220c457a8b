package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
	"loan-intake/internal/shared/telemetry"
)

const (
	providerName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Config is the immutable provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements llm.Gateway using OpenAI Chat Completions. Images are
// staged inline as base64 data URLs.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Classify implements llm.Gateway.
func (c *Client) Classify(ctx context.Context, img documents.Image, prompt string) (string, error) {
	return c.complete(ctx, llm.OpClassify, img, prompt, nil)
}

// Extract implements llm.Gateway.
func (c *Client) Extract(ctx context.Context, img documents.Image, schema llm.ResponseSchema, instructions string) (json.RawMessage, error) {
	format := &responseFormat{Type: "json_object"}
	if schema != nil {
		format = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: schemaName(schema), Strict: true, Schema: map[string]any(schema)},
		}
	}
	text, err := c.complete(ctx, llm.OpExtract, img, instructions, format)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

func (c *Client) complete(ctx context.Context, op string, img documents.Image, prompt string, format *responseFormat) (string, error) {
	part, err := stageImage(img)
	if err != nil {
		return "", &llm.GatewayError{Provider: providerName, Op: llm.OpUpload, Err: err}
	}
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: []contentPart{{Type: "text", Text: prompt}, part},
		}},
		ResponseFormat: format,
	}
	if !isGPT5(c.cfg.Model) {
		temp := float32(0)
		reqBody.Temperature = &temp
	}

	text, err := c.completeOnce(ctx, op, reqBody)
	if err != nil && reqBody.Temperature != nil && isTemperatureUnsupported(err) {
		reqBody.Temperature = nil
		text, err = c.completeOnce(ctx, op, reqBody)
	}
	return text, err
}

func (c *Client) completeOnce(ctx context.Context, op string, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.NewTransportError(providerName, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.NewTransportError(providerName, op, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", llm.NewStatusError(providerName, op, resp.StatusCode, body)
		}
		return "", &llm.GatewayError{Provider: providerName, Op: op, Err: fmt.Errorf("openai response parse: %w", err)}
	}
	if parsed.Error != nil {
		return "", &llm.GatewayError{
			Provider:   providerName,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type),
		}
	}
	if resp.StatusCode >= 300 {
		return "", llm.NewStatusError(providerName, op, resp.StatusCode, body)
	}
	if len(parsed.Choices) == 0 {
		return "", &llm.GatewayError{Provider: providerName, Op: op, Err: fmt.Errorf("openai response missing choices: %w", llm.ErrEmptyResponse)}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &llm.GatewayError{Provider: providerName, Op: op, Err: llm.ErrEmptyResponse}
	}
	if parsed.Usage != nil {
		telemetry.Debug("llm.usage", map[string]any{
			"provider":          providerName,
			"model":             c.cfg.Model,
			"op":                op,
			"prompt_tokens":     parsed.Usage.PromptTokens,
			"completion_tokens": parsed.Usage.CompletionTokens,
			"total_tokens":      parsed.Usage.TotalTokens,
		})
	}
	return content, nil
}

func stageImage(img documents.Image) (contentPart, error) {
	if len(img.Data) == 0 {
		return contentPart{}, errors.New("image has no data")
	}
	mime := img.MIME
	if mime == "" {
		mime = documents.MimePNG
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	if mime == documents.MimePDF {
		name := img.Name
		if name == "" {
			name = "document.pdf"
		}
		return contentPart{Type: "file", File: &filePart{Filename: name, FileData: dataURL}}, nil
	}
	return contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL}}, nil
}

func schemaName(schema llm.ResponseSchema) string {
	if title, ok := schema["title"].(string); ok && title != "" {
		return title
	}
	return "extraction"
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

func isTemperatureUnsupported(err error) bool {
	var gwErr *llm.GatewayError
	if !errors.As(err, &gwErr) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "temperature") && strings.Contains(msg, "unsupported")
}

var _ llm.Gateway = (*Client)(nil)
