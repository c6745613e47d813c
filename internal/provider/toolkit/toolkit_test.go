package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manash/stitchgen/internal/logging"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/pkg/models"
)

var testImage = models.EncodedImage{MIMEType: "image/png", Data: "iVBORw0KGgo="}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(&provider.Config{BaseURL: server.URL, Timeout: 5 * time.Second}), server
}

func TestNew_Defaults(t *testing.T) {
	c := New(&provider.Config{})
	if c.Endpoint() != "https://toolkit.rork.com/images/edit/" {
		t.Errorf("Endpoint() = %q", c.Endpoint())
	}
	if c.httpClient.Timeout != provider.DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, provider.DefaultTimeout)
	}

	c = New(&provider.Config{BaseURL: "https://example.com/", Timeout: time.Second})
	if c.Endpoint() != "https://example.com/images/edit/" {
		t.Errorf("Endpoint() = %q", c.Endpoint())
	}
	if c.httpClient.Timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", c.httpClient.Timeout)
	}
}

func TestClient_Generate_Success(t *testing.T) {
	var got apiRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/images/edit/" {
			t.Errorf("path = %s, want /images/edit/", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"image":{"mimeType":"image/jpeg","base64Data":"/9j/4AAQ"}}`))
	})

	out, err := client.Generate(context.Background(), "stitch it", testImage, models.AspectSquare)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if out.MIMEType != "image/jpeg" || out.Data != "/9j/4AAQ" {
		t.Errorf("Generate() = %+v", out)
	}
	if got.Prompt != "stitch it" {
		t.Errorf("request prompt = %q", got.Prompt)
	}
	if len(got.Images) != 1 || got.Images[0].Type != "image" || got.Images[0].Image != testImage.Data {
		t.Errorf("request images = %+v", got.Images)
	}
	if got.AspectRatio != "1:1" {
		t.Errorf("request aspectRatio = %q", got.AspectRatio)
	}
}

func TestClient_Generate_DefaultAspect(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AspectRatio != models.AspectSquare {
			t.Errorf("aspectRatio = %q, want %q", req.AspectRatio, models.AspectSquare)
		}
		w.Write([]byte(`{"image":{"mimeType":"image/png","base64Data":"AAAA"}}`))
	})

	if _, err := client.Generate(context.Background(), "p", testImage, ""); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, provider.ErrServiceUnavailable},
		{"bad gateway no body", http.StatusBadGateway, ``, provider.ErrServiceUnavailable},
		{"client error", http.StatusBadRequest, `{"image":{"mimeType":"image/png","base64Data":"AAAA"}}`, provider.ErrServiceUnavailable},
		{"not json", http.StatusOK, `<html>ok</html>`, provider.ErrMalformedResponse},
		{"missing image", http.StatusOK, `{}`, provider.ErrMalformedResponse},
		{"missing mime", http.StatusOK, `{"image":{"base64Data":"AAAA"}}`, provider.ErrMalformedResponse},
		{"missing data", http.StatusOK, `{"image":{"mimeType":"image/png"}}`, provider.ErrMalformedResponse},
		{"empty data", http.StatusOK, `{"image":{"mimeType":"image/png","base64Data":"  "}}`, provider.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			out, err := client.Generate(context.Background(), "p", testImage, models.AspectSquare)
			if out != nil {
				t.Errorf("Generate() = %+v, want nil", out)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Generate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Generate_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(&provider.Config{BaseURL: url, Timeout: time.Second})
	_, err := client.Generate(context.Background(), "p", testImage, models.AspectSquare)
	if !errors.Is(err, provider.ErrServiceUnavailable) {
		t.Errorf("Generate() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestClient_Generate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client := New(&provider.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Generate(context.Background(), "p", testImage, models.AspectSquare)
	if !errors.Is(err, provider.ErrServiceUnavailable) {
		t.Errorf("Generate() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestClient_Generate_NoRetry(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client.Generate(context.Background(), "p", testImage, models.AspectSquare)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server received %d calls, want 1", n)
	}
}

func TestClient_VerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"image":{"mimeType":"image/png","base64Data":"` + strings.Repeat("A", 400) + `"}}`))
	}))
	t.Cleanup(server.Close)

	client := New(
		&provider.Config{BaseURL: server.URL, Timeout: time.Second, Verbose: true},
		WithLogger(logging.New(&buf, "debug", false)),
	)
	if _, err := client.Generate(context.Background(), "log me", testImage, models.AspectSquare); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "generation request") || !strings.Contains(out, "generation response") {
		t.Errorf("log output missing request/response entries: %s", out)
	}
	if !strings.Contains(out, "[truncated]") {
		t.Errorf("log output should truncate base64 payloads: %s", out)
	}
	if strings.Contains(out, strings.Repeat("A", 200)) {
		t.Error("log output contains full payload")
	}
}

func TestTruncateBase64InJSON(t *testing.T) {
	long := strings.Repeat("B", 150)
	got := string(truncateBase64InJSON([]byte(`{"image":{"base64Data":"` + long + `","mimeType":"image/png"}}`)))
	if strings.Contains(got, long) {
		t.Errorf("truncateBase64InJSON() did not truncate: %s", got)
	}
	if !strings.Contains(got, "image/png") {
		t.Errorf("truncateBase64InJSON() dropped other fields: %s", got)
	}

	raw := string(truncateBase64InJSON([]byte("plain text")))
	if raw != `"plain text"` {
		t.Errorf("truncateBase64InJSON(non-json) = %s", raw)
	}
}
