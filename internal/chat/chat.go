// Package chat holds the transport-neutral message types exchanged with
// chat platforms.
package chat

import (
	"context"

	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// Message is one inbound chat message.
type Message struct {
	ThreadID      string `json:"thread_id"`
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`
	MessageID     string `json:"message_id,omitempty"`
	// ParticipantName is informational only.
	ParticipantName string `json:"participant_name,omitempty"`
}

// Action is a quick-reply button. Clicking it sends Value as the
// participant's next message.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Reply is one outbound message.
type Reply struct {
	ThreadID      string               `json:"thread_id"`
	ParticipantID string               `json:"participant_id,omitempty"`
	Text          string               `json:"text"`
	Actions       []Action             `json:"actions,omitempty"`
	Transaction   *lottery.Transaction `json:"transaction,omitempty"`
}

// Messenger delivers replies to the chat platform.
type Messenger interface {
	Send(ctx context.Context, r Reply) error
}

// MainMenu is attached to replies that end a flow.
var MainMenu = []Action{
	{ID: "buy", Label: "Buy a ticket", Value: "buy a ticket"},
	{ID: "pool", Label: "Join the pool", Value: "join the pool"},
	{ID: "stats", Label: "My stats", Value: "my stats"},
	{ID: "jackpot", Label: "Jackpot", Value: "what's the jackpot?"},
	{ID: "help", Label: "Help", Value: "help"},
}

// ConfirmMenu answers a held confirmation.
var ConfirmMenu = []Action{
	{ID: "confirm", Label: "Confirm", Value: "yes"},
	{ID: "cancel", Label: "Cancel", Value: "no"},
}

// PurchaseTypeMenu answers the solo-or-pool question.
var PurchaseTypeMenu = []Action{
	{ID: "solo", Label: "Solo", Value: "solo"},
	{ID: "pool", Label: "Pool", Value: "pool"},
}

// QuantityMenu offers common quantities.
var QuantityMenu = []Action{
	{ID: "qty_1", Label: "1", Value: "1"},
	{ID: "qty_5", Label: "5", Value: "5"},
	{ID: "qty_10", Label: "10", Value: "10"},
}

// Publisher is satisfied by *hermes.Client.
type Publisher interface {
	Publish(subject string, data any) error
}

// BusMessenger publishes replies on a message bus subject for a
// platform gateway to deliver.
type BusMessenger struct {
	pub     Publisher
	subject string
}

func NewBusMessenger(pub Publisher, subject string) *BusMessenger {
	return &BusMessenger{pub: pub, subject: subject}
}

func (b *BusMessenger) Send(_ context.Context, r Reply) error {
	return b.pub.Publish(b.subject, r)
}
