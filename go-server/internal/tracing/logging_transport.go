package tracing

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const maxPreview = 500

// loggingTransport logs every OTLP export request and its response. Exports
// are logged at debug level, failures at warn or error.
type loggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

// NewLoggingTransport wraps base (http.DefaultTransport when nil).
func NewLoggingTransport(logger *zap.Logger, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base:   base,
		logger: logger.With(zap.String("component", "otlp")),
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	t.logger.Debug("Sending OTLP export",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int64("content_length", req.ContentLength),
		zap.String("content_type", req.Header.Get("Content-Type")),
		zap.String("body_preview", requestPreview(req)),
		zap.Any("headers", redactHeaders(req.Header)),
	)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		t.logger.Error("OTLP export failed",
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	fields := []zap.Field{
		zap.String("path", req.URL.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	}
	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		fields = append(fields, zap.String("body_preview", responsePreview(resp)))
		t.logger.Error("OTLP export rejected", fields...)
	case resp.StatusCode >= http.StatusMultipleChoices:
		t.logger.Warn("OTLP export redirected", fields...)
	default:
		t.logger.Debug("OTLP export accepted", fields...)
	}
	return resp, nil
}

// requestPreview reads and restores the request body. Gzip payloads are
// decoded first.
func requestPreview(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody {
		return "(empty)"
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return "(unreadable)"
	}

	if req.Header.Get("Content-Encoding") == "gzip" {
		if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
			if plain, err := io.ReadAll(zr); err == nil {
				data = plain
			}
			zr.Close()
		}
	}
	return formatBodyPreview(data)
}

func responsePreview(resp *http.Response) string {
	if resp.Body == nil {
		return "(empty)"
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return "(unreadable)"
	}
	return formatBodyPreview(data)
}

func formatBodyPreview(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if !isPrintable(data) {
		return fmt.Sprintf("(binary protobuf data, %d bytes)", len(data))
	}
	preview := strings.Join(strings.Fields(string(data)), " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}

// isPrintable reports whether at least 70% of the first maxPreview bytes are
// printable ASCII or whitespace.
func isPrintable(data []byte) bool {
	if len(data) > maxPreview {
		data = data[:maxPreview]
	}
	if !utf8.Valid(data) {
		return false
	}
	printable := 0
	for _, b := range data {
		if (b >= 32 && b <= 126) || b == '\n' || b == '\t' || b == '\r' {
			printable++
		}
	}
	return float64(printable)/float64(len(data)) > 0.7
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "authorization") ||
			strings.Contains(lower, "token") ||
			strings.Contains(lower, "secret") ||
			strings.Contains(lower, "api-key") {
			out[key] = "***REDACTED***"
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
