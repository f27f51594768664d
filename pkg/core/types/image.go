package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Image is an encoded still image. Treat it as immutable once built.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// IsZero reports whether the image carries no bytes.
func (i Image) IsZero() bool {
	return len(i.Data) == 0
}

// DataURI formats the image as a base64 data URI.
func (i Image) DataURI() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Base64 returns the image bytes as standard base64 without a data URI prefix.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ParseDataURI decodes "data:<mime>;base64,<payload>". A bare base64 payload is
// accepted and assumed to be JPEG.
func ParseDataURI(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, fmt.Errorf("empty image")
	}
	mime := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return Image{}, fmt.Errorf("malformed data uri")
		}
		meta, isB64 := strings.CutSuffix(header, ";base64")
		if !isB64 {
			return Image{}, fmt.Errorf("data uri must be base64 encoded")
		}
		if meta != "" {
			mime = meta
		}
		payload = rest
	}
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("unsupported mime type %q", mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode image payload: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image")
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// UnmarshalJSON accepts either a data URI string or the object form.
func (i *Image) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		img, err := ParseDataURI(s)
		if err != nil {
			return err
		}
		*i = img
		return nil
	}
	type plain Image
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Image(p)
	return nil
}
