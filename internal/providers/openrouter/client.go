// Package openrouter restores photos through the OpenRouter chat completions API.
package openrouter

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/providers/extract"
	"heirloom/internal/providers/restore"
)

const (
	providerName   = "openrouter"
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.5-flash-image-preview"
	DefaultTitle   = "AI Heirloom Restore"
)

// Options configures the OpenRouter client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Referer    string
	Title      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Extractor  extract.Chain
	Logger     *infra.Logger
}

// Client is the primary restoration adapter.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	referer    string
	title      string
	httpClient *http.Client
	extractor  extract.Chain
	logger     *infra.Logger
}

type chatRequest struct {
	Model      string        `json:"model"`
	Modalities []string      `json:"modalities,omitempty"`
	Messages   []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = restore.NewHTTPClient(opts.Timeout)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = DefaultTitle
	}
	extractor := opts.Extractor
	if len(extractor) == 0 {
		extractor = extract.DefaultChain()
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		referer:    strings.TrimSpace(opts.Referer),
		title:      title,
		httpClient: client,
		extractor:  extractor,
		logger:     logger,
	}
}

// Name identifies the provider in logs and events.
func (c *Client) Name() string {
	return providerName
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Restore sends the photo with the restoration prompt and extracts the
// generated image from the reply.
func (c *Client) Restore(ctx context.Context, req restore.Request) (restore.Image, error) {
	key := strings.TrimSpace(req.Credential)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return restore.Image{}, domain.NewError(domain.KindNoCredential, "openrouter api key is required", domain.ErrNoCredential)
	}

	mime := restore.MIMETypeFor(req.Filename)
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	payload := chatRequest{
		Model:      c.model,
		Modalities: []string{"image", "text"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.PromptText()},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	header.Set("X-Title", c.title)
	if c.referer != "" {
		header.Set("HTTP-Referer", c.referer)
	}

	decoded, cerr := restore.PostJSON(ctx, c.httpClient, providerName, c.baseURL+"/chat/completions", header, payload)
	if cerr != nil {
		c.logger.Warn().Str("model", c.model).Str("kind", string(cerr.Kind)).Msg("openrouter: restoration failed")
		return restore.Image{}, cerr
	}

	img, strategy, ok := c.extractor.Extract(decoded)
	if !ok {
		return restore.Image{}, restore.NoImage(providerName, replyText(decoded))
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("strategy", strategy).
		Int("bytes", len(img.Data)).
		Msg("openrouter: extracted restored image")
	return img, nil
}

// replyText returns the assistant text, useful when the model refused.
func replyText(decoded any) string {
	root, ok := decoded.(map[string]any)
	if !ok {
		return ""
	}
	choices, _ := root["choices"].([]any)
	for _, choice := range choices {
		c, _ := choice.(map[string]any)
		msg, _ := c["message"].(map[string]any)
		if text, ok := msg["content"].(string); ok && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

var _ restore.Restorer = (*Client)(nil)
