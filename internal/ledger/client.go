// Package ledger reads lottery and pool state from the ledger gateway that
// fronts the lottery contracts. Figures here are authoritative but only
// eventually consistent with local pool counters.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// ErrNotFound is returned when the gateway has no record for the request.
var ErrNotFound = errors.New("ledger: not found")

// PoolAggregate is the on-chain view of one pool contract.
type PoolAggregate struct {
	TotalTickets    int   `json:"total_tickets"`
	PendingWinnings int64 `json:"pending_winnings"`
}

// State is the current lottery round.
type State struct {
	Jackpot     int64     `json:"jackpot"`
	TicketsSold int       `json:"tickets_sold"`
	TicketPrice int64     `json:"ticket_price"`
	EndsAt      time.Time `json:"ends_at"`
}

// PlayerStats is one wallet's standing in the current round.
type PlayerStats struct {
	Tickets         int     `json:"tickets"`
	PendingWinnings int64   `json:"pending_winnings"`
	OddsPercent     float64 `json:"odds_percent"`
}

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// ReadPoolAggregate returns the authoritative ticket count and pending
// winnings for a pool contract.
func (c *Client) ReadPoolAggregate(ctx context.Context, contract string) (PoolAggregate, error) {
	var agg PoolAggregate
	if err := c.get(ctx, "/v1/pools/"+url.PathEscape(contract)+"/aggregate", &agg); err != nil {
		return PoolAggregate{}, fmt.Errorf("read pool aggregate: %w", err)
	}
	return agg, nil
}

// LotteryState returns the current round.
func (c *Client) LotteryState(ctx context.Context) (State, error) {
	var st State
	if err := c.get(ctx, "/v1/lottery/state", &st); err != nil {
		return State{}, fmt.Errorf("read lottery state: %w", err)
	}
	return st, nil
}

// PlayerStats returns the wallet's tickets and winnings.
func (c *Client) PlayerStats(ctx context.Context, wallet string) (PlayerStats, error) {
	var ps PlayerStats
	if err := c.get(ctx, "/v1/players/"+url.PathEscape(wallet)+"/stats", &ps); err != nil {
		return PlayerStats{}, fmt.Errorf("read player stats: %w", err)
	}
	return ps, nil
}

// DescribeState renders the current round as one line for prompts.
func (c *Client) DescribeState(ctx context.Context) (string, error) {
	st, err := c.LotteryState(ctx)
	if err != nil {
		return "", err
	}
	return Describe(st), nil
}

// Describe renders st for humans and prompts.
func Describe(st State) string {
	s := fmt.Sprintf("jackpot %s USDC, ticket price %s USDC, %d tickets sold",
		lottery.FormatUnits(st.Jackpot), lottery.FormatUnits(st.TicketPrice), st.TicketsSold)
	if !st.EndsAt.IsZero() {
		s += ", draw at " + st.EndsAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return s
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("ledger error %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("ledger error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	c.logger.Debug("ledger read", "path", path)
	return nil
}
