package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectMessageReceived carries inbound chat messages from the forwarder.
	SubjectMessageReceived = "swarm.chat.message.received"
	// SubjectInteraction carries action button clicks.
	SubjectInteraction = "swarm.chat.interaction"
	// SubjectMessageSend carries outbound replies when Slack is not configured.
	SubjectMessageSend = "swarm.chat.message.send"
	// SubjectPurchaseEvent announces every executed or failed purchase.
	SubjectPurchaseEvent = "swarm.jackpot.purchase"

	// SubjectPurchaseTx is the transaction assembler's purchase endpoint.
	SubjectPurchaseTx = "lottery.tx.purchase"
	// SubjectClaimTx is the transaction assembler's claim endpoint.
	SubjectClaimTx = "lottery.tx.claim"
)

// PurchaseEvent is emitted after a purchase request is handed off, so
// downstream consumers can audit what was requested in each thread.
type PurchaseEvent struct {
	RequestID     string `json:"request_id"`
	ThreadID      string `json:"thread_id"`
	ParticipantID string `json:"participant_id"`
	PurchaseType  string `json:"purchase_type"`
	Quantity      int    `json:"quantity"`
	WalletAddress string `json:"wallet_address"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("jackpot"),
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

// Request publishes data on subject and decodes the first reply into out.
// The deadline comes from ctx.
func (c *Client) Request(ctx context.Context, subject string, data, out any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("unmarshal reply from %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every message on subject to handler. Handlers for
// one subscription run sequentially, which keeps per-thread order.
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
