package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/dedup"
	"github.com/MikeSquared-Agency/jackpot/internal/hermes"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
	"github.com/MikeSquared-Agency/jackpot/internal/ledger"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
	"github.com/MikeSquared-Agency/jackpot/internal/store"
)

const (
	testWallet   = "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"
	testContract = "0x1111111111111111111111111111111111111111"
	testPrice    = int64(1_000_000)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWallets struct {
	wallet string
	err    error
	calls  int
}

func (f *fakeWallets) ResolveWallet(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.wallet, f.err
}

type fakeAssembler struct {
	mu       sync.Mutex
	requests []lottery.PurchaseRequest
	claims   []string
	err      error
	delay    time.Duration

	inFlight    int
	maxInFlight int
}

func (f *fakeAssembler) Assemble(_ context.Context, req lottery.PurchaseRequest) (lottery.Transaction, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if f.err != nil {
		return lottery.Transaction{}, f.err
	}
	return lottery.Transaction{To: "0xlottery", Data: "0xdeadbeef", Value: "0", ChainID: 8453}, nil
}

func (f *fakeAssembler) Claim(_ context.Context, wallet string) (lottery.Transaction, error) {
	f.claims = append(f.claims, wallet)
	if f.err != nil {
		return lottery.Transaction{}, f.err
	}
	return lottery.Transaction{To: "0xlottery", Data: "0xclaim", Value: "0", ChainID: 8453}, nil
}

type fakeLottery struct {
	state ledger.State
	stats ledger.PlayerStats
	err   error
}

func (f *fakeLottery) LotteryState(context.Context) (ledger.State, error) { return f.state, f.err }

func (f *fakeLottery) PlayerStats(context.Context, string) (ledger.PlayerStats, error) {
	return f.stats, f.err
}

type fakeAudit struct {
	outcomes []string
}

func (f *fakeAudit) RecordPurchaseRequest(_ context.Context, _ string, _ lottery.PurchaseRequest, outcome, _ string) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []hermes.PurchaseEvent
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if evt, ok := data.(hermes.PurchaseEvent); ok && subject == hermes.SubjectPurchaseEvent {
		f.events = append(f.events, evt)
	}
	return nil
}

type fakeMessenger struct {
	replies []chat.Reply
}

func (f *fakeMessenger) Send(_ context.Context, r chat.Reply) error {
	f.replies = append(f.replies, r)
	return nil
}

type panicClassifier struct{}

func (panicClassifier) Classify(context.Context, convo.Key, string) intent.Intent {
	panic("boom")
}

type harness struct {
	proc      *Processor
	contexts  *convo.Store
	pools     *pool.Ledger
	wallets   *fakeWallets
	assembler *fakeAssembler
	lottery   *fakeLottery
	audit     *fakeAudit
	events    *fakePublisher
}

func newHarness(t *testing.T, fastPath bool) *harness {
	t.Helper()
	logger := discardLogger()
	h := &harness{
		contexts:  convo.New(nil, 0, logger),
		pools:     pool.New(nil, nil, pool.Options{UnitPrice: testPrice, DefaultContract: testContract}, logger),
		wallets:   &fakeWallets{wallet: testWallet},
		assembler: &fakeAssembler{},
		lottery:   &fakeLottery{},
		audit:     &fakeAudit{},
		events:    &fakePublisher{},
	}
	h.proc = New(Deps{
		Classifier: intent.New(h.contexts, logger),
		Contexts:   h.contexts,
		Pools:      h.pools,
		Wallets:    h.wallets,
		Assembler:  h.assembler,
		Lottery:    h.lottery,
		Audit:      h.audit,
		Events:     h.events,
	}, Options{FastPath: fastPath, TicketPrice: testPrice}, logger)
	return h
}

func (h *harness) send(participant, text string) chat.Reply {
	return h.proc.HandleMessage(context.Background(), chat.Message{ThreadID: "T1", ParticipantID: participant, Text: text})
}

func (h *harness) context(participant string) convo.Context {
	cc, _ := h.contexts.Peek(convo.Key{ThreadID: "T1", ParticipantID: participant})
	return cc
}

func TestConfirmationRoundTrip(t *testing.T) {
	h := newHarness(t, false)

	r := h.send("alice", "buy 5 tickets for myself")
	assert.Contains(t, r.Text, "Buy 5 tickets")
	assert.Contains(t, r.Text, "5.00 USDC")
	assert.Equal(t, chat.ConfirmMenu, r.Actions)
	assert.Equal(t, "T1", r.ThreadID)
	assert.Equal(t, "alice", r.ParticipantID)

	cc := h.context("alice")
	require.Equal(t, convo.StageAwaitingConfirmation, cc.Stage())
	assert.Equal(t, 5, cc.PendingQuantity)
	assert.Empty(t, h.assembler.requests)

	r = h.send("alice", "yes")
	require.Len(t, h.assembler.requests, 1)
	req := h.assembler.requests[0]
	assert.Equal(t, lottery.PurchaseSolo, req.Type())
	assert.Equal(t, 5, req.Base().Quantity)
	assert.Equal(t, testWallet, req.Base().WalletAddress)
	require.NotNil(t, r.Transaction)
	assert.Equal(t, "0xdeadbeef", r.Transaction.Data)

	cc = h.context("alice")
	assert.Equal(t, convo.StageIdle, cc.Stage())
	assert.Zero(t, cc.PendingQuantity)
	assert.Equal(t, []string{store.OutcomeAssembled}, h.audit.outcomes)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, "alice", h.events.events[0].ParticipantID)
}

func TestCancellationClearsState(t *testing.T) {
	for _, text := range []string{"buy 5 tickets for myself", "put 7 tickets in the pool"} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t, false)
			h.send("alice", text)
			require.Equal(t, convo.StageAwaitingConfirmation, h.context("alice").Stage())

			r := h.send("alice", "no")
			assert.Equal(t, textCancelled, r.Text)
			assert.Equal(t, chat.MainMenu, r.Actions)

			cc := h.context("alice")
			assert.Equal(t, convo.FlowNone, cc.Flow)
			assert.Zero(t, cc.PendingQuantity)
			assert.Zero(t, cc.PendingPoolQuantity)
			assert.False(t, cc.AwaitingConfirmation)
			assert.Empty(t, h.assembler.requests)
		})
	}
}

func TestAskQuantityThenType(t *testing.T) {
	h := newHarness(t, true)

	r := h.send("alice", "I want to buy tickets")
	assert.Equal(t, textAskQuantity, r.Text)
	assert.Equal(t, chat.QuantityMenu, r.Actions)
	assert.Equal(t, convo.StageAwaitingQuantity, h.context("alice").Stage())

	r = h.send("alice", "4")
	assert.Equal(t, chat.PurchaseTypeMenu, r.Actions)
	cc := h.context("alice")
	assert.Equal(t, convo.StageAwaitingPurchaseType, cc.Stage())
	assert.Equal(t, 4, cc.PendingQuantity)

	r = h.send("alice", "pool")
	require.Len(t, h.assembler.requests, 1, "choosing the type is the confirmation")
	req := h.assembler.requests[0]
	assert.Equal(t, lottery.PurchasePool, req.Type())
	assert.Equal(t, 4, req.Base().Quantity)
	assert.Equal(t, testContract, req.(lottery.PoolPurchase).PoolContract)
	assert.Contains(t, r.Text, textPoolNotice)
	assert.Equal(t, convo.StageIdle, h.context("alice").Stage())
}

func TestFastPath(t *testing.T) {
	h := newHarness(t, true)

	r := h.send("alice", "buy 2 tickets for myself")
	require.Len(t, h.assembler.requests, 1)
	assert.Equal(t, 2, h.assembler.requests[0].Base().Quantity)
	assert.NotNil(t, r.Transaction)
	assert.Equal(t, convo.StageIdle, h.context("alice").Stage())

	// Quantity without a type still asks.
	h.send("alice", "buy 3 tickets")
	assert.Len(t, h.assembler.requests, 1)
	assert.Equal(t, convo.StageAwaitingPurchaseType, h.context("alice").Stage())
}

func TestWalletFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, true)
	h.send("alice", "buy 5 tickets")
	before := h.context("alice")
	require.Equal(t, convo.StageAwaitingPurchaseType, before.Stage())

	h.wallets.err = store.ErrWalletNotFound
	r := h.send("alice", "solo")
	assert.Equal(t, textNoWallet, r.Text)
	assert.Empty(t, h.assembler.requests)

	after := h.context("alice")
	assert.Equal(t, before.Flow, after.Flow)
	assert.Equal(t, before.PendingQuantity, after.PendingQuantity)

	h.wallets.err = errors.New("directory down")
	r = h.send("alice", "solo")
	assert.Equal(t, textWalletLookupFailed, r.Text)
	assert.Equal(t, 5, h.context("alice").PendingQuantity)

	h.wallets.err = nil
	h.send("alice", "solo")
	require.Len(t, h.assembler.requests, 1)
	assert.Equal(t, 5, h.assembler.requests[0].Base().Quantity)
}

func TestAssemblerFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, false)
	h.assembler.err = errors.New("assembler timeout")

	h.send("alice", "buy 5 tickets for myself")
	r := h.send("alice", "yes")
	assert.Equal(t, textPurchaseFailed, r.Text)
	assert.Nil(t, r.Transaction)
	assert.Equal(t, chat.MainMenu, r.Actions)
	assert.Len(t, h.assembler.requests, 1, "no retry")
	assert.Equal(t, convo.StageIdle, h.context("alice").Stage())
	assert.Equal(t, []string{store.OutcomeFailed}, h.audit.outcomes)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, "assembler timeout", h.events.events[0].Error)
}

func TestPoolPurchaseRecordsShare(t *testing.T) {
	h := newHarness(t, true)

	r := h.send("alice", "buy 10 pool tickets")
	require.Len(t, h.assembler.requests, 1)
	assert.Contains(t, r.Text, "10 of 10 pool tickets (100.00%)")

	r = h.send("bob", "buy 5 pool tickets")
	assert.Contains(t, r.Text, "5 of 15 pool tickets (33.33%)")

	share, err := h.pools.GetShare("T1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 66.67, share.SharePercent)

	r = h.send("alice", "my pool share")
	assert.Contains(t, r.Text, "Pool: 15 tickets from 2 members, 15.00 USDC contributed.")
	assert.Contains(t, r.Text, "Your share: 10 of 15 tickets (66.67%).")
	assert.Contains(t, r.Text, textPoolNotice)
}

func TestPoolPurchaseFailureDoesNotRecord(t *testing.T) {
	h := newHarness(t, true)
	h.assembler.err = errors.New("rejected")

	h.send("alice", "buy 10 pool tickets")
	_, err := h.pools.GetStatus("T1")
	assert.ErrorIs(t, err, pool.ErrPoolNotFound)
}

func TestNonPurchaseIntentAbandonsFlow(t *testing.T) {
	h := newHarness(t, false)
	h.send("alice", "buy 5 tickets")
	require.Equal(t, convo.StageAwaitingPurchaseType, h.context("alice").Stage())

	h.send("alice", "hello")
	cc := h.context("alice")
	assert.Equal(t, convo.StageIdle, cc.Stage())
	assert.Zero(t, cc.PendingQuantity)
	assert.Equal(t, string(intent.TypeGreeting), cc.LastIntentType)
}

func TestInfoIntents(t *testing.T) {
	h := newHarness(t, false)
	h.lottery.state = ledger.State{Jackpot: 1_234_500_000, TicketsSold: 812, TicketPrice: testPrice}
	h.lottery.stats = ledger.PlayerStats{Tickets: 3, OddsPercent: 0.37, PendingWinnings: 2_500_000}

	r := h.send("alice", "what's the jackpot?")
	assert.Contains(t, r.Text, "jackpot 1234.50 USDC")

	r = h.send("alice", "my stats")
	assert.Contains(t, r.Text, "You hold 3 tickets")
	assert.Contains(t, r.Text, "2.50 USDC pending")
	assert.Equal(t, convo.FlowStatsInquiry, h.context("alice").Flow)

	r = h.send("alice", "claim my winnings")
	assert.Equal(t, []string{testWallet}, h.assembler.claims)
	require.NotNil(t, r.Transaction)
	assert.Contains(t, r.Text, "2.50 USDC")

	assert.Equal(t, textHelp, h.send("alice", "help").Text)
	assert.Equal(t, textGreeting, h.send("alice", "hi").Text)

	r = h.send("alice", "my pool share")
	assert.Equal(t, textNoPool, r.Text)
}

func TestClaimWithoutWinnings(t *testing.T) {
	h := newHarness(t, false)
	h.lottery.err = ledger.ErrNotFound

	r := h.send("alice", "claim")
	assert.Equal(t, textNothingToClaim, r.Text)
	assert.Empty(t, h.assembler.claims)
}

func TestPanicBecomesApology(t *testing.T) {
	h := newHarness(t, false)
	h.proc.Classifier = panicClassifier{}

	r := h.send("alice", "buy 5 tickets")
	assert.Equal(t, textApology, r.Text)
	assert.Equal(t, chat.MainMenu, r.Actions)
	assert.Equal(t, "T1", r.ThreadID)
	assert.Equal(t, convo.StageIdle, h.context("alice").Stage())
}

func TestMessagesInThreadAreSerialized(t *testing.T) {
	h := newHarness(t, true)
	h.assembler.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.send(fmt.Sprintf("p%d", i), "buy 1 pool ticket")
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.assembler.requests, 8)
	assert.Equal(t, 1, h.assembler.maxInFlight)
	st, err := h.pools.GetStatus("T1")
	require.NoError(t, err)
	assert.Equal(t, 8, st.TotalTickets)
	assert.Equal(t, 8, st.Members)

	h.proc.mu.Lock()
	assert.Empty(t, h.proc.threads, "thread locks are released")
	h.proc.mu.Unlock()
}

func TestHandleInboundSendsReply(t *testing.T) {
	h := newHarness(t, false)
	m := &fakeMessenger{}
	h.proc.Messenger = m

	data := []byte(`{"metadata":{"channel_id":"C1","user_id":"U1","text":"hi"}}`)
	h.proc.HandleInbound(hermes.SubjectMessageReceived, data)

	require.Len(t, m.replies, 1)
	assert.Equal(t, textGreeting, m.replies[0].Text)
	assert.Equal(t, "C1", m.replies[0].ThreadID)
	assert.Equal(t, "U1", m.replies[0].ParticipantID)

	h.proc.HandleInbound(hermes.SubjectMessageReceived, []byte(`not json`))
	assert.Len(t, m.replies, 1)

	click := []byte(`{"action_id":"jackpot:help","value":"help","user_id":"U1","channel_id":"C1"}`)
	h.proc.HandleInteraction(hermes.SubjectInteraction, click)
	require.Len(t, m.replies, 2)
	assert.Equal(t, textHelp, m.replies[1].Text)
}

func TestHandleInboundDropsRedelivery(t *testing.T) {
	h := newHarness(t, true)
	m := &fakeMessenger{}
	h.proc.Messenger = m
	h.proc.Dedup = dedup.New(nil, time.Minute)

	data := []byte(`{"metadata":{"channel_id":"T1","user_id":"alice","text":"buy 2 tickets for myself","message_ts":"1.1"}}`)
	h.proc.HandleInbound(hermes.SubjectMessageReceived, data)
	h.proc.HandleInbound(hermes.SubjectMessageReceived, data)

	assert.Len(t, m.replies, 1)
	assert.Len(t, h.assembler.requests, 1, "a redelivered message must not purchase twice")
}

type fakeAggregates struct {
	agg ledger.PoolAggregate
}

func (f fakeAggregates) ReadPoolAggregate(context.Context, string) (ledger.PoolAggregate, error) {
	return f.agg, nil
}

func TestPurchaseTypeCarriesOverQuantityQuestion(t *testing.T) {
	h := newHarness(t, true)

	r := h.send("alice", "buy tickets for myself")
	assert.Equal(t, textAskQuantity, r.Text)
	assert.Equal(t, lottery.PurchaseSolo, h.context("alice").PendingType)

	r = h.send("alice", "3")
	assert.Equal(t, chat.ConfirmMenu, r.Actions, "solo was already chosen")
	cc := h.context("alice")
	require.Equal(t, convo.StageAwaitingConfirmation, cc.Stage())
	assert.Equal(t, 3, cc.PendingQuantity)
	assert.Equal(t, lottery.PurchaseUnknown, cc.PendingType)

	h.send("alice", "yes")
	require.Len(t, h.assembler.requests, 1)
	assert.Equal(t, lottery.PurchaseSolo, h.assembler.requests[0].Type())
	assert.Equal(t, 3, h.assembler.requests[0].Base().Quantity)
}

func TestCancelWhileAskingQuantityOrType(t *testing.T) {
	tests := []struct {
		name  string
		start string
		stage convo.Stage
		reply string
	}{
		{"awaiting quantity", "I want to buy tickets", convo.StageAwaitingQuantity, "cancel"},
		{"awaiting purchase type", "buy 4 tickets", convo.StageAwaitingPurchaseType, "no"},
		{"awaiting pool quantity", "join the pool", convo.StageAwaitingQuantity, "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			h.send("alice", tt.start)
			require.Equal(t, tt.stage, h.context("alice").Stage())

			r := h.send("alice", tt.reply)
			assert.Equal(t, textCancelled, r.Text)
			assert.Equal(t, chat.MainMenu, r.Actions)

			cc := h.context("alice")
			assert.Equal(t, convo.StageIdle, cc.Stage())
			assert.Zero(t, cc.PendingQuantity)
			assert.Equal(t, convo.FlowNone, cc.Flow)
			assert.Empty(t, h.assembler.requests)
		})
	}
}

func TestConfirmationWalletFailureKeepsPending(t *testing.T) {
	h := newHarness(t, false)
	key := convo.Key{ThreadID: "T1", ParticipantID: "alice"}
	h.contexts.SetPendingPurchase(key, 5, "", false)

	h.wallets.err = store.ErrWalletNotFound
	r := h.send("alice", "yes")
	assert.Equal(t, textNoWallet, r.Text)
	assert.Empty(t, h.assembler.requests)

	cc := h.context("alice")
	assert.Equal(t, convo.StageAwaitingConfirmation, cc.Stage())
	assert.Equal(t, 5, cc.PendingQuantity)

	h.wallets.err = nil
	h.send("alice", "yes")
	require.Len(t, h.assembler.requests, 1)
	assert.Equal(t, 5, h.assembler.requests[0].Base().Quantity)
	assert.Equal(t, convo.StageIdle, h.context("alice").Stage())
}

func TestPoolStatsShowsProjectedPayout(t *testing.T) {
	h := newHarness(t, true)
	h.pools = pool.New(nil, fakeAggregates{agg: ledger.PoolAggregate{TotalTickets: 15, PendingWinnings: 100 * testPrice}},
		pool.Options{UnitPrice: testPrice, DefaultContract: testContract}, discardLogger())
	h.proc.Pools = h.pools

	h.send("alice", "buy 10 pool tickets")
	h.send("bob", "buy 5 pool tickets")

	r := h.send("alice", "my pool share")
	assert.Contains(t, r.Text, "On-chain: 15 tickets, 100.00 USDC pending winnings.")
	assert.Contains(t, r.Text, "you would receive 66.67 USDC")

	r = h.send("bob", "my pool share")
	assert.Contains(t, r.Text, "you would receive 33.33 USDC")
}
