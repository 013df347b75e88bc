// Package callback provides watch-stage sinks for finalized completions:
// a JetStream publisher for downstream consumers and a Sentry reporter for
// exhausted generations.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/completion"
	"github.com/wehubfusion/Daedalus/pkg/generation"
)

// JSPublisher is the minimal subset of JetStream operations the publisher
// depends on. This allows tests to provide a mock without a running NATS
// server.
type JSPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Config holds configuration for the publisher
type Config struct {
	Subject    string        // Subject to publish results to (default: "completions")
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	RetryDelay time.Duration // Delay between retries (default: 1s)
	Logger     *zap.Logger   // Custom logger instance (optional)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Subject:    "completions",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Result is the envelope published for each finalized completion
type Result struct {
	CompletionID string                 `json:"completionId"`
	Status       string                 `json:"status"` // "success" or "failed"
	Text         string                 `json:"text"`
	Generated    string                 `json:"generated"`
	StopReason   string                 `json:"stopReason"`
	Usage        *generation.Usage      `json:"usage,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    string                 `json:"createdAt"`
	PublishedAt  string                 `json:"publishedAt"`
}

// NewResult builds the publish envelope for a completion
func NewResult(c *completion.Completion) *Result {
	status := "success"
	if c.Failed {
		status = "failed"
	}
	return &Result{
		CompletionID: c.ID.String(),
		Status:       status,
		Text:         c.Text,
		Generated:    c.Generated,
		StopReason:   string(c.StopReason),
		Usage:        c.Usage,
		Metadata:     c.Metadata,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		PublishedAt:  time.Now().Format(time.RFC3339),
	}
}

// Publisher publishes finalized completions to a JetStream subject with
// bounded retries.
type Publisher struct {
	js     JSPublisher
	config *Config
	logger *zap.Logger
}

// NewPublisher creates a publisher over the given JetStream context
func NewPublisher(js JSPublisher, config *Config) (*Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Subject == "" {
		config.Subject = "completions"
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	return &Publisher{
		js:     js,
		config: config,
		logger: logger,
	}, nil
}

// Publish publishes one completion to the configured subject, retrying
// transient failures up to the configured maximum.
func (p *Publisher) Publish(ctx context.Context, c *completion.Completion) error {
	data, err := json.Marshal(NewResult(c))
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Info("Retrying publish",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.config.MaxRetries+1),
				zap.String("subject", p.config.Subject))
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled during retry: %w", ctx.Err())
			case <-time.After(p.config.RetryDelay):
			}
		}

		if _, err := p.js.Publish(p.config.Subject, data); err == nil {
			p.logger.Debug("Published completion result",
				zap.String("completion_id", c.ID.String()),
				zap.String("subject", p.config.Subject))
			return nil
		} else {
			lastErr = err
			p.logger.Warn("Publish attempt failed",
				zap.Int("attempt", attempt+1),
				zap.String("subject", p.config.Subject),
				zap.Error(err))
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

// WatchCallback adapts the publisher to the pipeline's watch stage. Every
// finalized completion is published exactly once.
func (p *Publisher) WatchCallback() completion.WatchCallback {
	return func(ctx context.Context, completions []*completion.Completion) error {
		for _, c := range completions {
			if err := p.Publish(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}
}
