package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/phone"
)

var ErrDeliveryFailed = errors.New("sms delivery failed")

type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
	// Enabled is false when no provider is configured and codes are not
	// delivered at all.
	Enabled() bool
}

type HTTPSenderConfig struct {
	URL     string
	APIKey  string
	From    string
	Timeout time.Duration
}

// HTTPSender posts OTP messages to an HTTP SMS gateway.
type HTTPSender struct {
	cfg    HTTPSenderConfig
	client *http.Client
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func NewHTTPSender(cfg HTTPSenderConfig) *HTTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPSender{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *HTTPSender) Enabled() bool { return true }

func (s *HTTPSender) SendOTP(ctx context.Context, to, code string) error {
	body, err := json.Marshal(sendRequest{
		To:      to,
		From:    s.cfg.From,
		Message: fmt.Sprintf("Your TutorLink verification code is %s. It expires in 5 minutes.", code),
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		observability.RecordSMSDelivery(ctx, "http", "transport_error")
		slog.WarnContext(ctx, "sms delivery failed", "phone", phone.Mask(to), "error", err.Error())
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.RecordSMSDelivery(ctx, "http", "rejected")
		slog.WarnContext(ctx, "sms provider rejected message", "phone", phone.Mask(to), "status", resp.StatusCode)
		return fmt.Errorf("%w: provider status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	observability.RecordSMSDelivery(ctx, "http", "delivered")
	return nil
}

// NoopSender is used when no provider is configured. Nothing is sent.
type NoopSender struct{}

func (NoopSender) Enabled() bool { return false }

func (NoopSender) SendOTP(ctx context.Context, to, _ string) error {
	slog.DebugContext(ctx, "sms provider not configured, skipping delivery", "phone", phone.Mask(to))
	return nil
}
