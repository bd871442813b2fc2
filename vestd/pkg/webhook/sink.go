// Package webhook delivers vesting events to an external HTTP endpoint.
package webhook

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

	"github.com/vestlabs/vest/utils/pkg/retry"
	"github.com/vestlabs/vest/vestd/pkg/vesting"
)

const deliveryTimeout = 10 * time.Second

type Config struct {
	Logger *slog.Logger
	URL    string
	Client *http.Client
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.URL == "" {
		return errors.New("webhook URL is required")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: deliveryTimeout}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Sink POSTs each event as JSON to the configured URL with retry and
// backoff. Delivery is best-effort: failures are logged and dropped, never
// surfaced to the ledger operation that produced the event.
type Sink struct {
	log *slog.Logger
	cfg Config
}

func NewSink(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Sink) Emit(ctx context.Context, ev vesting.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("webhook: failed to encode event", "event_id", ev.ID, "error", err)
		return
	}

	// Delivery must not inherit cancellation from the request that
	// produced the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout*time.Duration(s.cfg.Retry.MaxAttempts))
	defer cancel()

	err = retry.Do(ctx, s.cfg.Retry, func() error {
		return s.post(ctx, body)
	})
	if err != nil {
		s.log.Error("webhook: delivery failed",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"url", s.cfg.URL,
			"error", err,
		)
		return
	}
	s.log.Debug("webhook: delivered", "event_id", ev.ID, "type", string(ev.Type))
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.StatusError{Code: resp.StatusCode}
	}
	return nil
}
