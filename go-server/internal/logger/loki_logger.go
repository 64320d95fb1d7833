package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	lokiBatchSize     = 100
	lokiFlushInterval = time.Second
	lokiQueueSize     = 4096
)

// Options configures the process logger.
type Options struct {
	ServiceName string
	Environment string
	// LokiURL is the push endpoint, e.g. http://loki:3100/loki/api/v1/push.
	// Empty keeps logging on the console only.
	LokiURL string
	// Transport overrides the Loki HTTP transport (see NewLokiLoggingTransport).
	Transport http.RoundTripper
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiEntry struct {
	level string
	ts    time.Time
	line  string
}

// New builds the console logger and, when opts.LokiURL is set, tees it with
// a JSON core batching entries to Loki. The returned shutdown flushes
// pending entries.
func New(opts Options) (*zap.Logger, func(context.Context) error, error) {
	var consoleEncoder zapcore.Encoder
	level := zapcore.DebugLevel
	if opts.Environment == "production" {
		consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		level = zapcore.InfoLevel
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level)

	if opts.LokiURL == "" {
		logger := zap.New(consoleCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		// Sync on a terminal stdout fails with EINVAL; there is nothing to flush.
		return logger, func(context.Context) error { _ = logger.Sync(); return nil }, nil
	}

	pusher, err := newLokiPusher(opts)
	if err != nil {
		return nil, nil, err
	}

	lokiConfig := zap.NewProductionEncoderConfig()
	lokiConfig.TimeKey = "ts"
	lokiConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lokiCore := zapcore.NewCore(zapcore.NewJSONEncoder(lokiConfig), pusher, level)

	logger := zap.New(zapcore.NewTee(consoleCore, lokiCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	shutdown := func(ctx context.Context) error {
		_ = logger.Sync()
		return pusher.Shutdown(ctx)
	}
	return logger, shutdown, nil
}

// lokiPusher is a zapcore.WriteSyncer queueing lines for a background
// goroutine that pushes them in batches.
type lokiPusher struct {
	url     string
	client  *http.Client
	labels  map[string]string
	entries chan lokiEntry
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int
}

func newLokiPusher(opts Options) (*lokiPusher, error) {
	req, err := http.NewRequest(http.MethodPost, opts.LokiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid LOKI_URL: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	p := &lokiPusher{
		url:    req.URL.String(),
		client: &http.Client{Timeout: 10 * time.Second, Transport: transport},
		labels: map[string]string{
			"job":          opts.ServiceName,
			"service_name": opts.ServiceName,
			"environment":  opts.Environment,
		},
		entries: make(chan lokiEntry, lokiQueueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Write copies b: zap reuses the buffer once Write returns.
func (p *lokiPusher) Write(b []byte) (int, error) {
	var head struct {
		Level string `json:"level"`
	}
	_ = json.Unmarshal(b, &head)

	entry := lokiEntry{
		level: head.Level,
		ts:    time.Now(),
		line:  string(bytes.TrimRight(b, "\n")),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return len(b), nil
	}
	select {
	case p.entries <- entry:
	default:
		p.dropped++
	}
	return len(b), nil
}

func (p *lokiPusher) Sync() error {
	return nil
}

// Shutdown stops accepting entries and waits for the final push.
func (p *lokiPusher) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.entries)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *lokiPusher) run() {
	defer close(p.done)

	ticker := time.NewTicker(lokiFlushInterval)
	defer ticker.Stop()

	batch := make([]lokiEntry, 0, lokiBatchSize)
	for {
		select {
		case entry, ok := <-p.entries:
			if !ok {
				p.push(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= lokiBatchSize {
				p.push(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.push(batch)
				batch = batch[:0]
			}
		}
	}
}

// push groups the batch into one stream per level. Failures go to stderr,
// never back into the logger.
func (p *lokiPusher) push(batch []lokiEntry) {
	if len(batch) == 0 {
		return
	}

	byLevel := make(map[string]*lokiStream)
	order := make([]string, 0, 4)
	for _, e := range batch {
		s, ok := byLevel[e.level]
		if !ok {
			labels := make(map[string]string, len(p.labels)+1)
			for k, v := range p.labels {
				labels[k] = v
			}
			if e.level != "" {
				labels["level"] = e.level
			}
			s = &lokiStream{Stream: labels}
			byLevel[e.level] = s
			order = append(order, e.level)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(e.ts.UnixNano(), 10), e.line})
	}

	body := lokiPushRequest{Streams: make([]lokiStream, 0, len(order))}
	for _, level := range order {
		body.Streams = append(body.Streams, *byLevel[level])
	}

	payload, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loki: failed to marshal push request: %v\n", err)
		return
	}

	resp, err := p.client.Post(p.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loki: push failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Fprintf(os.Stderr, "loki: push rejected with status %d\n", resp.StatusCode)
	}

	p.mu.Lock()
	if p.dropped > 0 {
		fmt.Fprintf(os.Stderr, "loki: dropped %d entries, queue full\n", p.dropped)
		p.dropped = 0
	}
	p.mu.Unlock()
}
