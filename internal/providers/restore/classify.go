package restore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"heirloom/internal/domain"
)

const maxErrorDetail = 512

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorObject struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ProviderMessage extracts a readable message from a provider error body.
// Both OpenRouter and Gemini use {"error":{"message":...}}.
func ProviderMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var obj errorObject
		if err := json.Unmarshal(env.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return strings.TrimSpace(obj.Message)
		}
		var text string
		if err := json.Unmarshal(env.Error, &text); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxErrorDetail)
}

// truncate cuts s to at most n bytes without splitting a rune and drops any
// invalid UTF-8 the provider sent.
func truncate(s string, n int) string {
	if len(s) > n {
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return strings.ToValidUTF8(s, "")
}

// ClassifyStatus maps a non-2xx provider response onto the error taxonomy.
func ClassifyStatus(provider string, status int, body []byte) *domain.ClassifiedError {
	detail := ProviderMessage(body)
	if detail == "" {
		detail = http.StatusText(status)
	}
	cause := fmt.Errorf("%s status %d: %s", provider, status, detail)
	switch status {
	case http.StatusTooManyRequests:
		return domain.NewError(domain.KindQuotaExceeded, fmt.Sprintf("%s quota exceeded: %s", provider, detail), cause)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewError(domain.KindInvalidCredential, fmt.Sprintf("%s rejected the API key: %s", provider, detail), cause)
	default:
		return domain.NewError(domain.KindProviderError, fmt.Sprintf("%s error (%d): %s", provider, status, detail), cause)
	}
}

// NetworkError wraps a transport failure. The request URL is left out of the
// message since it may carry a query-string key.
func NetworkError(provider string, err error) *domain.ClassifiedError {
	detail := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		detail = urlErr.Err
	}
	return domain.NewError(domain.KindNetworkError, fmt.Sprintf("%s request failed: %v", provider, detail), err)
}

// NoImage reports a successful response that carried no usable image.
func NoImage(provider, detail string) *domain.ClassifiedError {
	msg := provider + " returned no image"
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + truncate(detail, maxErrorDetail)
	}
	return domain.NewError(domain.KindNoImageGenerated, msg, domain.ErrNoImageInReply)
}

// Classify makes sure err is a *domain.ClassifiedError, treating anything
// unrecognised as a provider error.
func Classify(provider string, err error) *domain.ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return domain.NewError(domain.KindProviderError, fmt.Sprintf("%s: %v", provider, err), err)
}
