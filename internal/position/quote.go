// Package position tracks the lifecycle of quotes: the bilateral leveraged
// positions whose open and close fills drive the aggregation buckets. All
// monetary fields are 10^18-scaled big integers.
package position

import "math/big"

// Side is the party-A direction of a quote.
type Side int32

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	default:
		return "Unknown"
	}
}

// LiquidatedSide records which party's liquidation terminated a quote.
type LiquidatedSide int32

const (
	LiquidatedSideNone LiquidatedSide = iota
	LiquidatedSidePartyA
	LiquidatedSidePartyB
)

// Status tracks quote lifecycle progress.
type Status int32

const (
	StatusPending Status = iota
	StatusLocked
	StatusCancelPending
	StatusCanceled
	StatusOpened
	StatusClosePending
	StatusCancelClosePending
	StatusClosed
	StatusLiquidated
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusLocked:
		return "Locked"
	case StatusCancelPending:
		return "CancelPending"
	case StatusCanceled:
		return "Canceled"
	case StatusOpened:
		return "Opened"
	case StatusClosePending:
		return "ClosePending"
	case StatusCancelClosePending:
		return "CancelClosePending"
	case StatusClosed:
		return "Closed"
	case StatusLiquidated:
		return "Liquidated"
	case StatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates lifecycle transitions. A cancel-pending quote can
// still be opened by party B, and a pending close can still be filled while
// its cancellation is pending.
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusPending: {
			StatusLocked,
			StatusCancelPending,
			StatusCanceled,
			StatusExpired,
		},
		StatusLocked: {
			StatusPending, // Unlocked by party B
			StatusCancelPending,
			StatusOpened,
			StatusExpired,
		},
		StatusCancelPending: {
			StatusCanceled,
			StatusOpened,
			StatusExpired,
		},
		StatusOpened: {
			StatusClosePending,
			StatusLiquidated,
		},
		StatusClosePending: {
			StatusOpened, // Partial close fill or accepted cancel
			StatusClosed,
			StatusCancelClosePending,
			StatusLiquidated,
		},
		StatusCancelClosePending: {
			StatusOpened,
			StatusClosed,
			StatusLiquidated,
		},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// Quote is one bilateral position between party A and party B.
type Quote struct {
	ID            uint64
	AccountID     string // Party-A address
	UserID        string
	AccountSource string
	SymbolID      uint64
	Side          Side
	OrderType     int32

	PartyB          string
	PartyBWhitelist []string

	Price       *big.Int // Requested limit price
	MarketPrice *big.Int
	Quantity    *big.Int
	Deadline    int64

	CVA      *big.Int
	LF       *big.Int
	PartyAMM *big.Int
	PartyBMM *big.Int

	OpenPrice            *big.Int // Fill price of OpenPosition
	OpenPriceFundingRate *big.Int // Funding-compounded reference price
	PaidFundingRate      *big.Int // Cumulative funding fee paid

	ClosedAmount   *big.Int
	AvgClosedPrice *big.Int

	Status         Status
	LiquidatedSide LiquidatedSide

	ClosePrice      *big.Int // Requested close price, set on close requests
	RequestedClose  *big.Int // Requested close quantity
	Timestamp       int64
	UpdateTimestamp int64
	BlockNumber     uint64
	TxHash          string
}

// RemainingOpen is the quantity still open: Quantity - ClosedAmount.
func (q *Quote) RemainingOpen() *big.Int {
	return new(big.Int).Sub(q.Quantity, q.ClosedAmount)
}

// IsOpen reports whether the quote carries live exposure.
func (q *Quote) IsOpen() bool {
	switch q.Status {
	case StatusOpened, StatusClosePending, StatusCancelClosePending:
		return true
	default:
		return false
	}
}
