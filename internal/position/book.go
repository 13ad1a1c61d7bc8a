package position

import (
	"errors"
	"fmt"
	"math/big"

	"QuoteLedger/internal/fixed"
)

var (
	// ErrZeroRemaining is returned when a liquidation targets a quote whose
	// open quantity is already fully closed.
	ErrZeroRemaining = errors.New("position: liquidation of quote with zero remaining quantity")

	// ErrCloseExceedsRemaining is returned when a close fill is larger than
	// the quantity still open.
	ErrCloseExceedsRemaining = errors.New("position: close fill exceeds remaining quantity")
)

// TransitionError reports a lifecycle transition the status machine forbids.
type TransitionError struct {
	QuoteID uint64
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("position: quote %d cannot transition %s -> %s", e.QuoteID, e.From, e.To)
}

// Stamp carries the chain coordinates of the event that caused a mutation.
type Stamp struct {
	Timestamp   int64
	BlockNumber uint64
	TxHash      string
}

func (q *Quote) stamp(s Stamp) {
	q.UpdateTimestamp = s.Timestamp
	q.BlockNumber = s.BlockNumber
	q.TxHash = s.TxHash
}

func (q *Quote) transition(next Status, s Stamp) error {
	if !q.Status.CanTransitionTo(next) {
		return &TransitionError{QuoteID: q.ID, From: q.Status, To: next}
	}
	q.Status = next
	q.stamp(s)
	return nil
}

// Lock binds party B to a pending quote.
func (q *Quote) Lock(partyB string, s Stamp) error {
	if err := q.transition(StatusLocked, s); err != nil {
		return err
	}
	q.PartyB = partyB
	return nil
}

// Unlock releases a locked quote back to pending.
func (q *Quote) Unlock(s Stamp) error {
	if err := q.transition(StatusPending, s); err != nil {
		return err
	}
	q.PartyB = ""
	return nil
}

// RequestCancel marks the quote cancel-pending.
func (q *Quote) RequestCancel(s Stamp) error {
	return q.transition(StatusCancelPending, s)
}

// AcceptCancel finalizes a pending cancellation.
func (q *Quote) AcceptCancel(s Stamp) error {
	return q.transition(StatusCanceled, s)
}

// Expire terminates a quote whose deadline passed before it opened.
func (q *Quote) Expire(s Stamp) error {
	return q.transition(StatusExpired, s)
}

// RequestClose records a close request for part of the open quantity.
func (q *Quote) RequestClose(closePrice, quantity *big.Int, s Stamp) error {
	if err := q.transition(StatusClosePending, s); err != nil {
		return err
	}
	q.ClosePrice = new(big.Int).Set(closePrice)
	q.RequestedClose = new(big.Int).Set(quantity)
	return nil
}

// RequestCancelClose marks the pending close request cancel-pending.
func (q *Quote) RequestCancelClose(s Stamp) error {
	return q.transition(StatusCancelClosePending, s)
}

// AcceptCancelClose withdraws the close request, returning to opened.
func (q *Quote) AcceptCancelClose(s Stamp) error {
	return q.transition(StatusOpened, s)
}

// Open fills the quote. The filled amount replaces the requested quantity
// (partial fills shrink the quote) and the fill price seeds both the open
// price and the funding-compounded reference price.
func (q *Quote) Open(filledAmount, openedPrice *big.Int, s Stamp) error {
	if err := q.transition(StatusOpened, s); err != nil {
		return err
	}
	q.Quantity = new(big.Int).Set(filledAmount)
	q.OpenPrice = new(big.Int).Set(openedPrice)
	q.OpenPriceFundingRate = new(big.Int).Set(openedPrice)
	q.PaidFundingRate = new(big.Int)
	q.ClosedAmount = new(big.Int)
	q.AvgClosedPrice = new(big.Int)
	return nil
}

// ApplyClose settles a close fill: the average closed price is recomputed as
// the quantity-weighted mean over all fills so far, the closed amount grows
// by the fill, and the quote becomes closed exactly when the closed amount
// reaches the full quantity.
func (q *Quote) ApplyClose(fillAmount, closePrice *big.Int, s Stamp) error {
	remaining := q.RemainingOpen()
	if fillAmount.Cmp(remaining) > 0 {
		return fmt.Errorf("%w: quote %d fill %s remaining %s",
			ErrCloseExceedsRemaining, q.ID, fillAmount, remaining)
	}

	avg, err := fixed.WeightedClose(q.AvgClosedPrice, q.ClosedAmount, fillAmount, closePrice)
	if err != nil {
		return err
	}

	next := StatusOpened
	closedAfter := new(big.Int).Add(q.ClosedAmount, fillAmount)
	if closedAfter.Cmp(q.Quantity) == 0 {
		next = StatusClosed
	}
	if err := q.transition(next, s); err != nil {
		return err
	}

	q.AvgClosedPrice = avg
	q.ClosedAmount = closedAfter
	return nil
}

// ApplyFunding compounds one signed funding rate into the quote's funding
// reference price and returns the funding fee paid on the still-open
// quantity. Quotes without live exposure pay nothing.
func (q *Quote) ApplyFunding(rate *big.Int, s Stamp) (*big.Int, error) {
	if !q.IsOpen() {
		return new(big.Int), nil
	}

	paid := fixed.FundingFee(q.OpenPriceFundingRate, rate, q.RemainingOpen())
	q.OpenPriceFundingRate = fixed.CompoundFundingPrice(q.OpenPriceFundingRate, rate, q.Side == SideLong)
	q.PaidFundingRate = new(big.Int).Add(q.PaidFundingRate, paid)
	q.stamp(s)
	return paid, nil
}

// Liquidate terminates the quote at the chain-reported average closed price.
// The marginal price of the liquidated remainder is derived by removing the
// already-closed fills from the reported average; the reported average then
// replaces the stored one while the closed amount is left untouched, so the
// gap to the full quantity records what was liquidated rather than traded.
func (q *Quote) Liquidate(reportedAvg *big.Int, side LiquidatedSide, s Stamp) (amount, price *big.Int, err error) {
	remaining := q.RemainingOpen()
	if remaining.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: quote %d", ErrZeroRemaining, q.ID)
	}

	price, err = fixed.MarginalLiquidationPrice(reportedAvg, q.Quantity, q.AvgClosedPrice, q.ClosedAmount, remaining)
	if err != nil {
		return nil, nil, err
	}

	if err := q.transition(StatusLiquidated, s); err != nil {
		return nil, nil, err
	}
	q.AvgClosedPrice = new(big.Int).Set(reportedAvg)
	q.LiquidatedSide = side
	return remaining, price, nil
}

// Book is the in-memory quote registry, owned by the event processing
// goroutine.
type Book struct {
	quotes map[uint64]*Quote
}

func NewBook() *Book {
	return &Book{quotes: make(map[uint64]*Quote)}
}

// Get returns the quote or nil.
func (b *Book) Get(id uint64) *Quote {
	return b.quotes[id]
}

// Create registers a new quote. An existing quote with the same ID is
// overwritten; chain IDs are unique so this only happens on re-processing
// bugs upstream of the dedup guard.
func (b *Book) Create(q *Quote) {
	b.quotes[q.ID] = q
}

// Len reports how many quotes the book holds.
func (b *Book) Len() int {
	return len(b.quotes)
}
