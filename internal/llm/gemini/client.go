package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
	"loan-intake/internal/shared/telemetry"
)

const (
	providerName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash-exp"
	adcScope       = "https://www.googleapis.com/auth/generative-language"
)

// Config is the immutable provider configuration. Either APIKey or
// TokenSource must be set.
type Config struct {
	APIKey      string
	TokenSource oauth2.TokenSource
	BaseURL     string
	Model       string
	Temperature float32
	// Timeout bounds each HTTP request; the caller's context still applies.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements llm.Gateway against the Gemini REST API. Each call
// uploads the image through the Files API and then references it from a
// single generateContent request.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// ADCTokenSource returns application default credentials scoped for the
// Generative Language API.
func ADCTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, adcScope)
	if err != nil {
		return nil, fmt.Errorf("gemini: find default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && cfg.TokenSource == nil {
		return nil, errors.New("GEMINI_API_KEY or application default credentials are required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
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

// Classify implements llm.Gateway.
func (c *Client) Classify(ctx context.Context, img documents.Image, prompt string) (string, error) {
	return c.generate(ctx, llm.OpClassify, img, prompt, nil)
}

// Extract implements llm.Gateway.
func (c *Client) Extract(ctx context.Context, img documents.Image, schema llm.ResponseSchema, instructions string) (json.RawMessage, error) {
	text, err := c.generate(ctx, llm.OpExtract, img, instructions, &generationConfig{
		Temperature:      c.cfg.Temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGeminiSchema(schema),
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

func (c *Client) generate(ctx context.Context, op string, img documents.Image, prompt string, genCfg *generationConfig) (string, error) {
	file, err := c.upload(ctx, img)
	if err != nil {
		return "", err
	}
	defer c.deleteFile(file.Name)

	if genCfg == nil {
		genCfg = &generationConfig{Temperature: c.cfg.Temperature}
	}
	reqBody := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{FileData: &fileData{MIMEType: file.MIMEType, FileURI: file.URI}},
				{Text: prompt},
			},
		}},
		GenerationConfig: genCfg,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, op)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &llm.GatewayError{Provider: providerName, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &llm.GatewayError{Provider: providerName, Op: op, StatusCode: parsed.Error.Code, Err: errors.New(parsed.Error.Message)}
	}
	text := strings.TrimSpace(parsed.text())
	if text == "" {
		return "", &llm.GatewayError{Provider: providerName, Op: op, Err: llm.ErrEmptyResponse}
	}
	if parsed.UsageMetadata != nil {
		telemetry.Debug("llm.usage", map[string]any{
			"provider":          providerName,
			"model":             c.cfg.Model,
			"op":                op,
			"prompt_tokens":     parsed.UsageMetadata.PromptTokenCount,
			"completion_tokens": parsed.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      parsed.UsageMetadata.TotalTokenCount,
		})
	}
	return text, nil
}

// upload stages img with the Files API using the resumable protocol:
// a start request returns an upload URL which receives the bytes.
func (c *Client) upload(ctx context.Context, img documents.Image) (uploadedFile, error) {
	mime := img.MIME
	if mime == "" {
		mime = documents.MimePNG
	}
	displayName := img.Name
	if displayName == "" {
		displayName = uuid.NewString()
	}
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return uploadedFile{}, err
	}

	start, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return uploadedFile{}, err
	}
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(img.Data)))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mime)
	start.Header.Set("Content-Type", "application/json")

	uploadURL, err := c.doStart(start)
	if err != nil {
		return uploadedFile{}, err
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(img.Data))
	if err != nil {
		return uploadedFile{}, err
	}
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	put.Header.Set("Content-Length", strconv.Itoa(len(img.Data)))

	body, err := c.do(put, llm.OpUpload)
	if err != nil {
		return uploadedFile{}, err
	}
	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return uploadedFile{}, &llm.GatewayError{Provider: providerName, Op: llm.OpUpload, Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if parsed.File.URI == "" {
		return uploadedFile{}, &llm.GatewayError{Provider: providerName, Op: llm.OpUpload, Err: errors.New("upload response missing file uri")}
	}
	if parsed.File.MIMEType == "" {
		parsed.File.MIMEType = mime
	}
	return parsed.File, nil
}

func (c *Client) doStart(req *http.Request) (string, error) {
	if err := c.authorize(req); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.NewTransportError(providerName, llm.OpUpload, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", llm.NewStatusError(providerName, llm.OpUpload, resp.StatusCode, body)
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", &llm.GatewayError{Provider: providerName, Op: llm.OpUpload, Err: errors.New("missing X-Goog-Upload-URL header")}
	}
	return uploadURL, nil
}

// deleteFile removes a staged file. Failures only get logged: staged files
// expire on their own.
func (c *Client) deleteFile(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/v1beta/"+name, nil)
	if err != nil {
		return
	}
	if _, err := c.do(req, "delete"); err != nil {
		telemetry.Debug("llm.file.delete_failed", map[string]any{"provider": providerName, "file": name, "error": err.Error()})
	}
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewTransportError(providerName, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewTransportError(providerName, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llm.NewStatusError(providerName, op, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
		return nil
	}
	tok, err := c.cfg.TokenSource.Token()
	if err != nil {
		return &llm.GatewayError{Provider: providerName, Op: "auth", Err: err}
	}
	tok.SetAuthHeader(req)
	return nil
}

var _ llm.Gateway = (*Client)(nil)
