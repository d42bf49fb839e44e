package restore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"heirloom/internal/domain"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a provider reply is buffered. Generated
// images arrive base64 encoded inside JSON, so this is well above the upload
// limit.
const maxResponseBytes = 64 << 20

// NewHTTPClient returns a pooled client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return client
}

// PostJSON sends payload and returns the decoded JSON reply. Transport errors
// become NetworkError, non-2xx replies are classified by status, and a 2xx
// body that is not JSON becomes NoImageGenerated.
func PostJSON(ctx context.Context, client *http.Client, provider, endpoint string, header http.Header, payload any) (any, *domain.ClassifiedError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindProviderError, fmt.Sprintf("%s: encode request: %v", provider, err), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewError(domain.KindProviderError, fmt.Sprintf("%s: build request: %v", provider, err), err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, NetworkError(provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NetworkError(provider, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ClassifyStatus(provider, resp.StatusCode, raw)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, NoImage(provider, "undecodable response")
	}
	return decoded, nil
}
