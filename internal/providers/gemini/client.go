// Package gemini restores photos by calling the Gemini generateContent API
// directly. It is used when no OpenRouter key is available.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/providers/extract"
	"heirloom/internal/providers/restore"
)

const (
	providerName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash-image-preview"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Extractor  extract.Chain
	Logger     *infra.Logger
}

// Client is the fallback restoration adapter.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	extractor  extract.Chain
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// NewClient constructs a Gemini client with defaults for every unset option.
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

	extractor := opts.Extractor
	if len(extractor) == 0 {
		extractor = extract.DefaultChain()
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		extractor:  extractor,
		logger:     logger,
	}
}

// Name identifies the provider in logs and events.
func (c *Client) Name() string {
	return providerName
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Restore sends the photo inline with the restoration prompt.
func (c *Client) Restore(ctx context.Context, req restore.Request) (restore.Image, error) {
	key := strings.TrimSpace(req.Credential)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return restore.Image{}, domain.NewError(domain.KindNoCredential, "gemini api key is required", domain.ErrNoCredential)
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.PromptText()},
				{InlineData: &geminiInlineData{
					MimeType: restore.MIMETypeFor(req.Filename),
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	decoded, cerr := restore.PostJSON(ctx, c.httpClient, providerName, c.endpoint(key), nil, payload)
	if cerr != nil {
		c.logger.Warn().Str("model", c.model).Str("kind", string(cerr.Kind)).Msg("gemini: restoration failed")
		return restore.Image{}, cerr
	}

	img, strategy, ok := c.extractor.Extract(decoded)
	if !ok {
		return restore.Image{}, restore.NoImage(providerName, candidateText(decoded))
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("strategy", strategy).
		Int("bytes", len(img.Data)).
		Msg("gemini: extracted restored image")
	return img, nil
}

func (c *Client) endpoint(key string) string {
	q := url.Values{}
	q.Set("key", key)
	return fmt.Sprintf("%s/models/%s:generateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

// candidateText joins the text parts of the reply, or reports the finish
// reason when there are none.
func candidateText(decoded any) string {
	root, ok := decoded.(map[string]any)
	if !ok {
		return ""
	}
	var texts []string
	var reason string
	candidates, _ := root["candidates"].([]any)
	for _, cand := range candidates {
		cm, _ := cand.(map[string]any)
		if r, ok := cm["finishReason"].(string); ok && reason == "" {
			reason = r
		}
		content, _ := cm["content"].(map[string]any)
		parts, _ := content["parts"].([]any)
		for _, part := range parts {
			pm, _ := part.(map[string]any)
			if text, ok := pm["text"].(string); ok && strings.TrimSpace(text) != "" {
				texts = append(texts, strings.TrimSpace(text))
			}
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, " ")
	}
	if reason != "" {
		return "finish reason " + reason
	}
	if feedback, ok := root["promptFeedback"].(map[string]any); ok {
		if r, ok := feedback["blockReason"].(string); ok {
			return "blocked: " + r
		}
	}
	return ""
}

var _ restore.Restorer = (*Client)(nil)
