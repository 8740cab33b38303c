package relay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImageBytes caps inline uploads when no limit is configured.
const DefaultMaxImageBytes = 20 << 20

// Provider task ids are UUID-like; anything else never reaches a provider URL.
var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateTaskID rejects ids that are empty or could alter a provider request
// path.
func ValidateTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return NewValidationError("task id is required")
	}
	if !taskIDPattern.MatchString(taskID) {
		return NewValidationError("task id %q is malformed", taskID)
	}
	return nil
}

var acceptedMimeTypes = map[string]bool{
	MimeJPEG: true,
	MimePNG:  true,
	MimeWEBP: true,
}

// AcceptedMimeType reports whether uploads of this type are allowed.
func AcceptedMimeType(mimeType string) bool {
	return acceptedMimeTypes[normalizeMime(mimeType)]
}

// ValidateImage rejects input that no provider would accept. maxBytes <= 0 uses
// DefaultMaxImageBytes.
func ValidateImage(img Image, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	if len(img.Data) == 0 {
		if img.URL == "" {
			return NewValidationError("image is empty")
		}
		return validateImageURL(img.URL)
	}
	if img.URL != "" {
		return NewValidationError("provide either image bytes or an image URL, not both")
	}

	mimeType := normalizeMime(img.MimeType)
	if mimeType == "" {
		return NewValidationError("mime type is required")
	}
	if !acceptedMimeTypes[mimeType] {
		return NewValidationError("unsupported mime type %q: use image/jpeg, image/png or image/webp", img.MimeType)
	}
	if int64(len(img.Data)) > maxBytes {
		return NewValidationError("image is %d bytes, larger than the %d byte limit", len(img.Data), maxBytes)
	}

	detected := mimetype.Detect(img.Data)
	if !detected.Is(mimeType) {
		return NewValidationError("image content is %s but was declared as %s", detected.String(), mimeType)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err != nil {
		return NewValidationError("image could not be decoded: %v", err)
	}
	return nil
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("invalid image URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("image URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return NewValidationError("image URL has no host")
	}
	return nil
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 string is
// accepted too, in which case the returned mime type is empty.
func ParseDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", NewValidationError("image is empty")
	}

	mimeType := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		meta, data, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return nil, "", NewValidationError("malformed data URL")
		}
		params := strings.Split(meta, ";")
		mimeType = normalizeMime(params[0])
		isBase64 := false
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				isBase64 = true
			}
		}
		if !isBase64 {
			return nil, "", NewValidationError("data URL must be base64 encoded")
		}
		payload = data
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", NewValidationError("image is not valid base64: %v", err)
		}
	}
	return decoded, mimeType, nil
}

// DataURL encodes an inline image as a base64 data URL.
func DataURL(img Image) string {
	return fmt.Sprintf("data:%s;base64,%s", normalizeMime(img.MimeType), base64.StdEncoding.EncodeToString(img.Data))
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" {
		return MimeJPEG
	}
	return mimeType
}
