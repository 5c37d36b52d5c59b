package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatReply(t *testing.T) {
	msg := formatReply(chat.Reply{
		ParticipantID: "U1",
		Text:          "Here is your purchase.",
		Transaction:   &lottery.Transaction{To: "0xabc", Data: "0x01", Value: "0", ChainID: 8453},
	})

	checks := []string{"<@U1>", "Here is your purchase.", "Transaction to sign", "to: 0xabc", "chain: 8453", "data: 0x01"}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got %q", check, msg)
		}
	}
}

func TestSend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Channel string           `json:"channel"`
			Text    string           `json:"text"`
			Blocks  []map[string]any `json:"blocks"`
		}
		json.Unmarshal(body, &payload)

		if payload.Channel != "C999" {
			t.Errorf("expected thread channel C999, got %v", payload.Channel)
		}
		if len(payload.Blocks) != 2 || payload.Blocks[1]["type"] != "actions" {
			t.Fatalf("expected section and actions blocks, got %v", payload.Blocks)
		}
		elements, _ := payload.Blocks[1]["elements"].([]any)
		if len(elements) != len(chat.ConfirmMenu) {
			t.Fatalf("expected %d buttons, got %d", len(chat.ConfirmMenu), len(elements))
		}
		first, _ := elements[0].(map[string]any)
		if first["action_id"] != "jackpot:confirm" || first["value"] != "yes" {
			t.Errorf("unexpected first button %v", first)
		}

		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1234567890.123456"})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	err := p.Send(context.Background(), chat.Reply{ThreadID: "C999", Text: "Buy 5 tickets?", Actions: chat.ConfirmMenu})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSend_DefaultChannelWithoutActions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Channel string           `json:"channel"`
			Blocks  []map[string]any `json:"blocks"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.Channel != "C123" {
			t.Errorf("expected default channel, got %q", payload.Channel)
		}
		if len(payload.Blocks) != 1 {
			t.Errorf("expected only a section block, got %d", len(payload.Blocks))
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	if err := p.Send(context.Background(), chat.Reply{Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSend_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	err := p.Send(context.Background(), chat.Reply{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}
