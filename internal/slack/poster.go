package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// ActionPrefix marks button action ids that belong to this agent.
const ActionPrefix = "jackpot:"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Send posts r to its thread's channel, falling back to the configured
// channel. Actions render as a row of buttons.
func (p *Poster) Send(ctx context.Context, r chat.Reply) error {
	channel := r.ThreadID
	if channel == "" {
		channel = p.channel
	}
	text := formatReply(r)

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": text,
			},
		},
	}
	if len(r.Actions) > 0 {
		blocks = append(blocks, map[string]any{
			"type":     "actions",
			"elements": buttons(r.Actions),
		})
	}

	body, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    text,
		"blocks":  blocks,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Debug("posted reply to slack", "ts", slackResp.TS, "thread_id", r.ThreadID)
	return nil
}

func buttons(actions []chat.Action) []map[string]any {
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, map[string]any{
			"type":      "button",
			"action_id": ActionPrefix + a.ID,
			"value":     a.Value,
			"text": map[string]any{
				"type": "plain_text",
				"text": a.Label,
			},
		})
	}
	return out
}

func formatReply(r chat.Reply) string {
	var sb strings.Builder
	if r.ParticipantID != "" {
		fmt.Fprintf(&sb, "<@%s> ", r.ParticipantID)
	}
	sb.WriteString(r.Text)
	if tx := r.Transaction; tx != nil {
		fmt.Fprintf(&sb, "\n\n*Transaction to sign*\n```to: %s\nvalue: %s\nchain: %d\ndata: %s```", tx.To, tx.Value, tx.ChainID, tx.Data)
	}
	return sb.String()
}
