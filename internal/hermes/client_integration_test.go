//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan PurchaseEvent, 1)

	err = client.Subscribe("swarm.jackpot.test.>", func(subject string, data []byte) {
		var evt PurchaseEvent
		json.Unmarshal(data, &evt)
		received <- evt
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	err = client.Publish("swarm.jackpot.test.purchase", PurchaseEvent{
		ThreadID: "T1",
		Quantity: 3,
		Outcome:  "assembled",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.ThreadID != "T1" || evt.Quantity != 3 {
			t.Errorf("unexpected event %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_RequestReply(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	logger := slog.Default()

	client, err := NewClient(context.Background(), natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	// Stands in for the transaction assembler on the other side of the bus.
	sub, err := client.conn.Subscribe("lottery.test.echo", func(msg *nats.Msg) {
		var in map[string]int
		json.Unmarshal(msg.Data, &in)
		out, _ := json.Marshal(map[string]int{"doubled": in["n"] * 2})
		msg.Respond(out)
	})
	if err != nil {
		t.Fatalf("reply subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out map[string]int
	if err := client.Request(ctx, "lottery.test.echo", map[string]int{"n": 21}, &out); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out["doubled"] != 42 {
		t.Errorf("expected 42, got %v", out)
	}
}
