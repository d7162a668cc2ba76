package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/pkg/safehttp"
	"github.com/karenlarocque/feature-forgetting/internal/telemetry"
)

// WebhookSink posts each submitted log as JSON to an external collection
// service. There is no retry.
type WebhookSink struct {
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	pending pending
}

var _ ports.SubmissionSink = (*WebhookSink)(nil)

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		s.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WebhookOption {
	return func(s *WebhookSink) {
		s.logger = l
	}
}

// NewWebhookSink creates a sink for cfg. Requests to private addresses are
// refused unless cfg.AllowPrivate is set.
func NewWebhookSink(cfg config.WebhookConfig, timeout time.Duration, opts ...WebhookOption) *WebhookSink {
	var transport http.RoundTripper = http.DefaultTransport
	if !cfg.AllowPrivate {
		transport = safehttp.NewTransport()
	}

	s := &WebhookSink{
		url:     cfg.URL,
		headers: cfg.Headers,
		timeout: timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(transport)},
		logger:  slog.Default(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebhookSink) Submit(log *domain.Log) {
	body, err := json.Marshal(log)
	if err != nil {
		s.logger.Error("failed to marshal data log",
			slog.String("session_id", log.Metadata.SessionID),
			slog.String("error", err.Error()))
		return
	}

	id := log.Metadata.SessionID
	s.pending.run(func() {
		if err := s.post(id, body); err != nil {
			s.logger.Error("webhook submission failed",
				slog.String("session_id", id),
				slog.String("url", s.url),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("data log sent to webhook", slog.String("session_id", id))
	})
}

func (s *WebhookSink) post(sessionID string, body []byte) error {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "submission.webhook",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	err := s.do(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook failed")
	}
	return err
}

func (s *WebhookSink) do(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "create request", goerr.V("url", s.url))
	}

	req.Header.Set("Content-Type", "application/json")

	// Add custom headers
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "webhook request failed", goerr.V("url", s.url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return goerr.New("webhook returned error status",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)))
	}
	return nil
}

func (s *WebhookSink) Flush(ctx context.Context) error {
	return s.pending.wait(ctx)
}
