// Package lottery holds the domain values shared by the purchase pipeline:
// purchase types, the purchase request handed to the transaction assembler,
// and the signable transaction it returns.
package lottery

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	MinTickets = 1
	MaxTickets = 100

	// UnitDecimals is the decimal precision of token amounts (USDC).
	UnitDecimals = 6
	unitScale    = 1_000_000
)

// PurchaseType distinguishes a participant buying for themselves from a
// contribution to the thread's shared pool.
type PurchaseType string

const (
	PurchaseUnknown PurchaseType = ""
	PurchaseSolo    PurchaseType = "solo"
	PurchasePool    PurchaseType = "pool"
)

// ErrInvalidRequest is returned when a purchase request fails validation.
var ErrInvalidRequest = errors.New("invalid purchase request")

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidWallet reports whether addr looks like an EVM address.
func ValidWallet(addr string) bool {
	return walletPattern.MatchString(addr)
}

// ValidQuantity reports whether n is an acceptable ticket count.
func ValidQuantity(n int) bool {
	return n >= MinTickets && n <= MaxTickets
}

// PurchaseRequest is a finalized purchase ready for the transaction
// assembler. The only implementations are SoloPurchase and PoolPurchase.
type PurchaseRequest interface {
	Type() PurchaseType
	Base() PurchaseBase
	Validate() error
	sealed()
}

// PurchaseBase carries the fields every purchase requires.
type PurchaseBase struct {
	ID            uuid.UUID
	WalletAddress string
	Quantity      int
	ThreadID      string
}

func (b PurchaseBase) validate() error {
	if b.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if !ValidWallet(b.WalletAddress) {
		return fmt.Errorf("%w: wallet %q", ErrInvalidRequest, b.WalletAddress)
	}
	if !ValidQuantity(b.Quantity) {
		return fmt.Errorf("%w: quantity %d outside [%d,%d]", ErrInvalidRequest, b.Quantity, MinTickets, MaxTickets)
	}
	if strings.TrimSpace(b.ThreadID) == "" {
		return fmt.Errorf("%w: missing thread", ErrInvalidRequest)
	}
	return nil
}

// SoloPurchase buys tickets credited to the participant's own wallet.
type SoloPurchase struct {
	PurchaseBase
}

// PoolPurchase buys tickets through the thread's pool contract.
type PoolPurchase struct {
	PurchaseBase
	PoolContract string
}

// NewSolo builds a SoloPurchase with a fresh id.
func NewSolo(wallet string, quantity int, threadID string) SoloPurchase {
	return SoloPurchase{PurchaseBase{ID: uuid.New(), WalletAddress: wallet, Quantity: quantity, ThreadID: threadID}}
}

// NewPool builds a PoolPurchase with a fresh id.
func NewPool(wallet string, quantity int, threadID, contract string) PoolPurchase {
	return PoolPurchase{
		PurchaseBase: PurchaseBase{ID: uuid.New(), WalletAddress: wallet, Quantity: quantity, ThreadID: threadID},
		PoolContract: contract,
	}
}

func (SoloPurchase) Type() PurchaseType { return PurchaseSolo }

func (s SoloPurchase) Base() PurchaseBase { return s.PurchaseBase }

func (s SoloPurchase) Validate() error { return s.PurchaseBase.validate() }

func (SoloPurchase) sealed() {}

func (PoolPurchase) Type() PurchaseType { return PurchasePool }

func (p PoolPurchase) Base() PurchaseBase { return p.PurchaseBase }

func (PoolPurchase) sealed() {}

func (p PoolPurchase) Validate() error {
	if err := p.PurchaseBase.validate(); err != nil {
		return err
	}
	if !ValidWallet(p.PoolContract) {
		return fmt.Errorf("%w: pool contract %q", ErrInvalidRequest, p.PoolContract)
	}
	return nil
}

// Envelope is the wire form of a PurchaseRequest.
type Envelope struct {
	ID            string       `json:"id"`
	PurchaseType  PurchaseType `json:"purchase_type"`
	WalletAddress string       `json:"wallet_address"`
	Quantity      int          `json:"quantity"`
	ThreadID      string       `json:"thread_id"`
	PoolContract  string       `json:"pool_contract,omitempty"`
}

// ToEnvelope flattens a request for transport.
func ToEnvelope(req PurchaseRequest) Envelope {
	b := req.Base()
	env := Envelope{
		ID:            b.ID.String(),
		PurchaseType:  req.Type(),
		WalletAddress: b.WalletAddress,
		Quantity:      b.Quantity,
		ThreadID:      b.ThreadID,
	}
	if p, ok := req.(PoolPurchase); ok {
		env.PoolContract = p.PoolContract
	}
	return env
}

// FromEnvelope rebuilds and validates a request received over the wire.
func FromEnvelope(env Envelope) (PurchaseRequest, error) {
	id, err := uuid.Parse(env.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidRequest, err)
	}
	base := PurchaseBase{ID: id, WalletAddress: env.WalletAddress, Quantity: env.Quantity, ThreadID: env.ThreadID}

	var req PurchaseRequest
	switch env.PurchaseType {
	case PurchaseSolo:
		req = SoloPurchase{base}
	case PurchasePool:
		req = PoolPurchase{PurchaseBase: base, PoolContract: env.PoolContract}
	default:
		return nil, fmt.Errorf("%w: purchase type %q", ErrInvalidRequest, env.PurchaseType)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Transaction is signable call data produced by the assembler. The core
// never signs or submits it.
type Transaction struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chain_id"`
}

// FormatUnits renders a 6-decimal token amount with two decimals,
// rounding half up.
func FormatUnits(units int64) string {
	neg := units < 0
	if neg {
		units = -units
	}
	cents := (units + unitScale/200) / (unitScale / 100)
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}
