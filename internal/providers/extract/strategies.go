package extract

import (
	"sort"
	"strings"
)

// InlineData matches Gemini-style candidates[].content.parts[].inlineData.
type InlineData struct{}

func (InlineData) Name() string { return "inline_data" }

func (InlineData) Extract(payload any) (Image, bool) {
	root, ok := asMap(payload)
	if !ok {
		return Image{}, false
	}
	for _, candidate := range asSlice(root["candidates"]) {
		c, ok := asMap(candidate)
		if !ok {
			continue
		}
		content, ok := asMap(c["content"])
		if !ok {
			continue
		}
		for _, part := range asSlice(content["parts"]) {
			p, ok := asMap(part)
			if !ok {
				continue
			}
			inline, ok := asMap(field(p, "inlineData", "inline_data"))
			if !ok {
				continue
			}
			mime := asString(field(inline, "mimeType", "mime_type"))
			if mime != "" && !strings.HasPrefix(strings.ToLower(mime), "image/") {
				continue
			}
			data, ok := decodeValue(inline["data"])
			if !ok {
				continue
			}
			return Image{Data: data, MIMEType: sniffMIME(data, mime)}, true
		}
	}
	return Image{}, false
}

// ContentText matches a data URI embedded in choices[].message.content text.
type ContentText struct{}

func (ContentText) Name() string { return "content_text" }

func (ContentText) Extract(payload any) (Image, bool) {
	for _, msg := range messages(payload) {
		text, ok := msg["content"].(string)
		if !ok || text == "" {
			continue
		}
		if img, ok := decodeDataURI(text); ok {
			return img, true
		}
	}
	return Image{}, false
}

// ContentParts matches typed image_url parts in choices[].message.content
// and in the OpenRouter choices[].message.images list.
type ContentParts struct{}

func (ContentParts) Name() string { return "content_parts" }

func (ContentParts) Extract(payload any) (Image, bool) {
	for _, msg := range messages(payload) {
		var parts []any
		parts = append(parts, asSlice(msg["content"])...)
		parts = append(parts, asSlice(msg["images"])...)
		for _, part := range parts {
			p, ok := asMap(part)
			if !ok || asString(p["type"]) != "image_url" {
				continue
			}
			var url string
			switch v := p["image_url"].(type) {
			case string:
				url = v
			case map[string]any:
				url = asString(v["url"])
			}
			if img, ok := decodeDataURI(url); ok {
				return img, true
			}
		}
	}
	return Image{}, false
}

// DeepScan walks any nested payload depth-first looking for an image. Map
// keys are visited in sorted order so the first match is deterministic.
type DeepScan struct {
	// MaxDepth bounds recursion; zero means 64.
	MaxDepth int
}

func (DeepScan) Name() string { return "deep_scan" }

var (
	mimeKeys           = []string{"mime_type", "mimeType", "media_type", "mediaType", "content_type", "contentType", "type"}
	payloadKeys        = []string{"data", "b64_json", "base64", "bytes", "image_bytes", "image_base64"}
	selfDescribingKeys = []string{"b64_json", "image_bytes", "image_base64"}
)

func (d DeepScan) Extract(payload any) (Image, bool) {
	depth := d.MaxDepth
	if depth <= 0 {
		depth = 64
	}
	return scan(payload, depth)
}

func scan(v any, depth int) (Image, bool) {
	if depth <= 0 {
		return Image{}, false
	}
	switch t := v.(type) {
	case map[string]any:
		if img, ok := pairedImage(t); ok {
			return img, true
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if img, ok := scan(t[k], depth-1); ok {
				return img, true
			}
		}
	case []any:
		for _, item := range t {
			if img, ok := scan(item, depth-1); ok {
				return img, true
			}
		}
	case []byte:
		if len(t) > 0 {
			return Image{Data: t, MIMEType: sniffMIME(t, "")}, true
		}
	case string:
		if strings.Contains(t, "data:image/") {
			return decodeDataURI(t)
		}
	}
	return Image{}, false
}

// pairedImage matches a map that pairs an image type indicator with a base64
// payload, or carries a self-describing image payload key.
func pairedImage(m map[string]any) (Image, bool) {
	var mime string
	for _, k := range mimeKeys {
		if s := strings.ToLower(asString(m[k])); strings.Contains(s, "image") {
			mime = s
			break
		}
	}
	keys := selfDescribingKeys
	if mime != "" {
		keys = payloadKeys
	}
	for _, k := range keys {
		data, ok := decodeValue(m[k])
		if !ok {
			continue
		}
		return Image{Data: data, MIMEType: sniffMIME(data, mime)}, true
	}
	return Image{}, false
}
