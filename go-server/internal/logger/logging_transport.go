package logger

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const lokiPreviewLen = 300

// lokiLoggingTransport traces Loki pushes to stderr. It must not use the zap
// logger: every line it wrote would trigger another push.
type lokiLoggingTransport struct {
	base http.RoundTripper
	out  io.Writer
}

// NewLokiLoggingTransport wraps base (http.DefaultTransport when nil).
// Enabled with LOKI_DEBUG=true.
func NewLokiLoggingTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &lokiLoggingTransport{base: base, out: os.Stderr}
}

func (t *lokiLoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	size, preview := snapshotBody(&req.Body)
	fmt.Fprintf(t.out, "[loki] push %s %s size=%d body=%s\n", req.Method, req.URL.Redacted(), size, preview)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(t.out, "[loki] push failed after %v: %v\n", elapsed, err)
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_, errBody := snapshotBody(&resp.Body)
		fmt.Fprintf(t.out, "[loki] status=%d duration=%v error=%s\n", resp.StatusCode, elapsed, errBody)
	} else {
		fmt.Fprintf(t.out, "[loki] status=%d duration=%v\n", resp.StatusCode, elapsed)
	}
	return resp, nil
}

// snapshotBody reads the body, puts an identical reader back, and returns
// its size and a single-line preview.
func snapshotBody(body *io.ReadCloser) (int, string) {
	if *body == nil || *body == http.NoBody {
		return 0, "(empty)"
	}
	data, err := io.ReadAll(*body)
	(*body).Close()
	*body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return len(data), "(unreadable)"
	}
	return len(data), compactPreview(data, lokiPreviewLen)
}

func compactPreview(data []byte, maxLen int) string {
	if len(data) == 0 {
		return "(empty)"
	}
	preview := strings.Join(strings.Fields(string(data)), " ")
	if len(preview) > maxLen {
		preview = preview[:maxLen] + "..."
	}
	return preview
}
