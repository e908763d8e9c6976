// Package events connects the service to NATS for transcript intake and
// completion notifications.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects the service speaks on.
const (
	SubjectTranscriptStored    = "clipsmith.transcript.stored"
	SubjectGenerationCompleted = "clipsmith.generation.completed"
	SubjectStyleAnalyzed       = "clipsmith.style.analyzed"
)

// TranscriptStoredEvent announces a transcript ready for content
// generation. Either the inline text or the URL is set.
type TranscriptStoredEvent struct {
	TranscriptID  string  `json:"transcript_id"`
	Transcript    string  `json:"transcript,omitempty"`
	TranscriptURL string  `json:"transcript_url,omitempty"`
	Title         string  `json:"title,omitempty"`
	Language      string  `json:"language,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
}

// GenerationCompletedEvent announces a persisted batch.
type GenerationCompletedEvent struct {
	GenerationID string `json:"generation_id"`
	TranscriptID string `json:"transcript_id,omitempty"`
	Format       string `json:"format"`
	ItemCount    int    `json:"item_count"`
	Passes       int    `json:"passes"`
}

// StyleAnalyzedEvent announces a persisted style profile.
type StyleAnalyzedEvent struct {
	ProfileID string `json:"profile_id"`
	Name      string `json:"name,omitempty"`
	Degraded  bool   `json:"degraded"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
