package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
)

// ErrIgnored is returned for events that are valid but not for us: bot
// messages, empty text, or buttons from other apps.
var ErrIgnored = errors.New("event ignored")

// InteractionEvent matches the slack-gateway interaction event format.
type InteractionEvent struct {
	ActionID  string `json:"action_id"`
	Value     string `json:"value"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	TriggerID string `json:"trigger_id"`
}

// ParseMessageEvent parses a NATS message payload from slack-forwarder. The
// forwarder publishes events with metadata in a wrapper.
func ParseMessageEvent(data []byte) (chat.Message, error) {
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return chat.Message{}, fmt.Errorf("parse message wrapper: %w", err)
	}
	md := wrapper.Metadata

	if md["bot_id"] != "" || md["subtype"] == "bot_message" {
		return chat.Message{}, ErrIgnored
	}
	msg := chat.Message{
		ThreadID:        md["channel_id"],
		ParticipantID:   md["user_id"],
		ParticipantName: md["user_name"],
		Text:            stripMentions(md["text"]),
		MessageID:       md["message_ts"],
	}
	if msg.ThreadID == "" || msg.ParticipantID == "" {
		return chat.Message{}, fmt.Errorf("message missing channel or user")
	}
	if msg.Text == "" {
		return chat.Message{}, ErrIgnored
	}
	return msg, nil
}

// ParseInteraction turns one of our button clicks into a message whose
// text is the button value. The trigger id is unique per click, so it is
// used as the message id.
func ParseInteraction(data []byte) (chat.Message, error) {
	var evt InteractionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return chat.Message{}, fmt.Errorf("parse interaction: %w", err)
	}
	if !strings.HasPrefix(evt.ActionID, ActionPrefix) || evt.Value == "" {
		return chat.Message{}, ErrIgnored
	}
	return chat.Message{
		ThreadID:        evt.ChannelID,
		ParticipantID:   evt.UserID,
		ParticipantName: evt.UserName,
		Text:            evt.Value,
		MessageID:       evt.TriggerID,
	}, nil
}

// stripMentions removes <@U123> mentions so "@jackpot buy 2" reads as
// "buy 2".
func stripMentions(text string) string {
	var sb strings.Builder
	for {
		start := strings.Index(text, "<@")
		if start < 0 {
			sb.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start:], '>')
		if end < 0 {
			sb.WriteString(text)
			break
		}
		sb.WriteString(text[:start])
		text = text[start+end+1:]
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
