// Package restore holds the contract shared by restoration provider adapters.
package restore

import (
	"context"
	"path/filepath"
	"strings"

	"heirloom/internal/providers/extract"
)

// DefaultPrompt instructs the provider to restore and colorize the photo.
const DefaultPrompt = "Restore and COLORIZE this historical photograph. Remove scratches/dust, gently enhance sharpness, and " +
	"produce a realistic COLOR output with natural, period-accurate tones. Preserve subject identity, lighting, " +
	"and scene authenticity. Avoid monochrome or stylized looks and do not oversaturate. IMPORTANT: The output must be in COLOR, " +
	"not black and white. Add realistic colors based on the historical period and context."

// DefaultMIMEType is assumed when the filename extension is unknown.
const DefaultMIMEType = "image/jpeg"

// Request is the provider-agnostic input for one restoration call.
type Request struct {
	Image      []byte
	Filename   string
	Prompt     string
	Credential string
}

// PromptText returns the request prompt or the default restoration prompt.
func (r Request) PromptText() string {
	if p := strings.TrimSpace(r.Prompt); p != "" {
		return p
	}
	return DefaultPrompt
}

// Image is the restored output.
type Image = extract.Image

// Restorer turns an image into a restored image. Every non-nil error returned
// is a *domain.ClassifiedError.
type Restorer interface {
	Restore(ctx context.Context, req Request) (Image, error)
	Name() string
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
}

// MIMETypeFor infers an image MIME type from the filename extension.
func MIMETypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return DefaultMIMEType
}
