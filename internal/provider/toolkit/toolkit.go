package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/pkg/models"
)

const (
	DefaultBaseURL = "https://toolkit.rork.com"
	editPath       = "/images/edit/"
)

type apiImage struct {
	Type  string `json:"type"`
	Image string `json:"image"`
}

type apiRequest struct {
	Prompt      string     `json:"prompt"`
	Images      []apiImage `json:"images"`
	AspectRatio string     `json:"aspectRatio"`
}

type apiResponse struct {
	Image *struct {
		MIMEType   string `json:"mimeType"`
		Base64Data string `json:"base64Data"`
	} `json:"image"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	verbose    bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(cfg *provider.Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zerolog.Nop(),
		verbose:    cfg.Verbose,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.baseURL + editPath
}

// Generate issues exactly one request. Any failure is returned to the caller
// as is; there is no retry.
func (c *Client) Generate(ctx context.Context, prompt string, image models.EncodedImage, aspectRatio string) (*models.EncodedImage, error) {
	if aspectRatio == "" {
		aspectRatio = models.AspectSquare
	}

	jsonData, err := json.Marshal(apiRequest{
		Prompt:      prompt,
		Images:      []apiImage{{Type: "image", Image: image.Data}},
		AspectRatio: aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.Endpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logRequest(url, prompt, image)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrServiceUnavailable, err)
	}

	c.logResponse(resp.StatusCode, time.Since(start), body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", provider.ErrServiceUnavailable, resp.StatusCode)
	}

	return parseResponse(body)
}

func parseResponse(body []byte) (*models.EncodedImage, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	if apiResp.Image == nil {
		return nil, fmt.Errorf("%w: missing image", provider.ErrMalformedResponse)
	}
	if strings.TrimSpace(apiResp.Image.MIMEType) == "" {
		return nil, fmt.Errorf("%w: missing image.mimeType", provider.ErrMalformedResponse)
	}
	if strings.TrimSpace(apiResp.Image.Base64Data) == "" {
		return nil, fmt.Errorf("%w: missing image.base64Data", provider.ErrMalformedResponse)
	}

	return &models.EncodedImage{
		MIMEType: apiResp.Image.MIMEType,
		Data:     apiResp.Image.Base64Data,
	}, nil
}

func (c *Client) logRequest(url, prompt string, image models.EncodedImage) {
	if !c.verbose {
		return
	}
	c.logger.Debug().
		Str("method", http.MethodPost).
		Str("url", url).
		Str("prompt", prompt).
		Str("mime", image.MIMEType).
		Int("image_b64_len", len(image.Data)).
		Msg("generation request")
}

func (c *Client) logResponse(status int, elapsed time.Duration, body []byte) {
	if !c.verbose {
		return
	}
	c.logger.Debug().
		Int("status", status).
		Dur("elapsed", elapsed).
		RawJSON("body", truncateBase64InJSON(body)).
		Msg("generation response")
}

// truncateBase64InJSON shortens payload fields so debug logs stay readable.
// Bodies that are not JSON are quoted as a string.
func truncateBase64InJSON(body []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		quoted, _ := json.Marshal(truncate(string(body), 200))
		return quoted
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		quoted, _ := json.Marshal("")
		return quoted
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if (key == "base64Data" || key == "image") && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

var _ provider.Generator = (*Client)(nil)
