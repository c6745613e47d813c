package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/security"
	"github.com/manash/stitchgen/pkg/models"
)

const (
	dataURIPrefix   = "data:"
	base64Marker    = ";base64,"
	downloadTimeout = 60 * time.Second
)

var errNotDataURI = errors.New("not a base64 data URI")

// Codec converts image references into the service's wire form and back.
// A reference is a data URI, a file:// URI, a filesystem path or an http(s)
// URL.
type Codec struct {
	httpClient *http.Client
	policy     *security.URLPolicy
}

func NewCodec() *Codec {
	return &Codec{
		httpClient: &http.Client{Timeout: downloadTimeout},
		policy:     security.DefaultURLPolicy(),
	}
}

// NewCodecWithClient uses hc for remote references and policy to vet them.
// A nil policy falls back to the default.
func NewCodecWithClient(hc *http.Client, policy *security.URLPolicy) *Codec {
	if hc == nil {
		hc = &http.Client{Timeout: downloadTimeout}
	}
	if policy == nil {
		policy = security.DefaultURLPolicy()
	}
	return &Codec{httpClient: hc, policy: policy}
}

// Encode reads ref and returns its bytes base64-encoded, unchanged, without
// any data URI prefix. Failures wrap provider.ErrSourceUnreadable.
func (c *Codec) Encode(ctx context.Context, ref string) (models.EncodedImage, error) {
	if mimeType, payload, err := splitDataURI(ref); err == nil {
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return models.EncodedImage{}, fmt.Errorf("%w: invalid base64 payload: %v", provider.ErrSourceUnreadable, err)
		}
		return models.EncodedImage{MIMEType: mimeType, Data: payload}, nil
	}

	data, mimeType, err := c.Read(ctx, ref)
	if err != nil {
		return models.EncodedImage{}, err
	}
	return models.EncodedImage{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Read returns the raw bytes behind ref and their MIME type.
func (c *Codec) Read(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "", fmt.Errorf("%w: empty reference", provider.ErrSourceUnreadable)
	}

	if strings.HasPrefix(ref, dataURIPrefix) {
		mimeType, payload, err := splitDataURI(ref)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid base64 payload: %v", provider.ErrSourceUnreadable, err)
		}
		return data, mimeType, nil
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return c.download(ctx, ref)
	}

	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
		}
		path = u.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %s is empty", provider.ErrSourceUnreadable, path)
	}
	return data, detectMIME(path, data), nil
}

func (c *Codec) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := c.policy.Validate(rawURL); err != nil {
		return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to download: %v", provider.ErrSourceUnreadable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: download failed with status: %d", provider.ErrSourceUnreadable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", provider.ErrSourceUnreadable, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil && strings.HasPrefix(parsed, "image/") {
		mimeType = parsed
	} else {
		mimeType = detectMIME(rawURL, data)
	}
	return data, mimeType, nil
}

// Decode rebuilds a renderable reference from the MIME type and payload the
// service returned.
func Decode(mimeType, payload string) (string, error) {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return "", fmt.Errorf("%w: empty mime type", provider.ErrMalformedResponse)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", fmt.Errorf("%w: invalid base64 payload: %v", provider.ErrMalformedResponse, err)
	}
	return dataURIPrefix + mimeType + base64Marker + payload, nil
}

// DecodeImage is Decode for an EncodedImage.
func DecodeImage(img *models.EncodedImage) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: no image", provider.ErrMalformedResponse)
	}
	return Decode(img.MIMEType, img.Data)
}

func splitDataURI(ref string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(ref, dataURIPrefix) {
		return "", "", errNotDataURI
	}
	header, payload, ok := strings.Cut(ref[len(dataURIPrefix):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", "", errNotDataURI
	}
	mimeType = strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType, payload, nil
}

func detectMIME(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(byExt, "image/") {
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			return parsed
		}
	}
	return http.DetectContentType(data)
}

// ExtensionFor returns a file extension (without dot) for an image MIME type.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
