// Package extract locates generated images inside provider responses.
//
// Providers surface generated media through structurally different payloads.
// A Chain tries a fixed list of strategies in order and the first one that
// yields decodable image bytes wins.
package extract

import (
	"encoding/base64"
	"net/http"
	"regexp"
	"strings"
)

// Image is a decoded image blob with its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Strategy inspects a decoded JSON payload (maps, slices, strings, numbers)
// for one known response shape.
type Strategy interface {
	Name() string
	Extract(payload any) (Image, bool)
}

// Chain is an ordered list of strategies.
type Chain []Strategy

// DefaultChain returns the strategies in priority order.
func DefaultChain() Chain {
	return Chain{InlineData{}, ContentText{}, ContentParts{}, DeepScan{}}
}

// Extract runs the strategies in order and reports which one matched.
func (c Chain) Extract(payload any) (Image, string, bool) {
	if payload == nil {
		return Image{}, "", false
	}
	for _, s := range c {
		if img, ok := s.Extract(payload); ok {
			return img, s.Name(), true
		}
	}
	return Image{}, "", false
}

var dataURIPattern = regexp.MustCompile(`data:(image/[A-Za-z0-9.+-]+);base64,([A-Za-z0-9+/_=-]+)`)

// decodeDataURI decodes the first valid data:image URI found in text.
func decodeDataURI(text string) (Image, bool) {
	for _, m := range dataURIPattern.FindAllStringSubmatch(text, -1) {
		data, ok := decodeBase64(m[2])
		if !ok {
			continue
		}
		return Image{Data: data, MIMEType: strings.ToLower(m[1])}, true
	}
	return Image{}, false
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "data:") {
		if img, ok := decodeDataURI(s); ok {
			return img.Data, true
		}
		return nil, false
	}
	for _, enc := range base64Encodings {
		data, err := enc.DecodeString(s)
		if err == nil && len(data) > 0 {
			return data, true
		}
	}
	return nil, false
}

// decodeValue accepts raw bytes or base64 text.
func decodeValue(v any) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		if len(t) == 0 {
			return nil, false
		}
		return t, true
	case string:
		return decodeBase64(t)
	}
	return nil, false
}

func sniffMIME(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/png"
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// field returns the first present value for the given keys.
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// messages yields every choices[].message object of a chat-style payload.
func messages(payload any) []map[string]any {
	root, ok := asMap(payload)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, choice := range asSlice(root["choices"]) {
		c, ok := asMap(choice)
		if !ok {
			continue
		}
		if msg, ok := asMap(field(c, "message", "delta")); ok {
			out = append(out, msg)
		}
	}
	return out
}
