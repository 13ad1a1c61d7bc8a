package event

import "math/big"

// SendQuote creates a new pending quote (trade intent) for party A.
type SendQuote struct {
	Base
	PartyA          string
	QuoteID         uint64
	PartyBWhitelist []string
	SymbolID        uint64
	PositionType    int32 // 0 = long, 1 = short
	OrderType       int32 // 0 = limit, 1 = market
	Price           *big.Int
	MarketPrice     *big.Int
	Deadline        int64
	Quantity        *big.Int
	CVA             *big.Int
	PartyAMM        *big.Int
	PartyBMM        *big.Int
	LF              *big.Int
}

func (*SendQuote) Kind() Kind { return KindSendQuote }

// LockQuote assigns a counterparty to a pending quote.
type LockQuote struct {
	Base
	QuoteID uint64
	PartyB  string
}

func (*LockQuote) Kind() Kind { return KindLockQuote }

// UnlockQuote releases a locked quote back to pending.
type UnlockQuote struct {
	Base
	QuoteID uint64
}

func (*UnlockQuote) Kind() Kind { return KindUnlockQuote }

// AcceptCancelRequest finalizes a cancellation.
type AcceptCancelRequest struct {
	Base
	QuoteID uint64
}

func (*AcceptCancelRequest) Kind() Kind { return KindAcceptCancelRequest }

// ExpireQuote marks a pending quote as expired past its deadline.
type ExpireQuote struct {
	Base
	QuoteID uint64
}

func (*ExpireQuote) Kind() Kind { return KindExpireQuote }

// RequestToCancelQuote records party A asking to cancel; only activity
// timestamps move until the cancel is accepted.
type RequestToCancelQuote struct {
	Base
	PartyA  string
	QuoteID uint64
}

func (*RequestToCancelQuote) Kind() Kind { return KindRequestToCancelQuote }

// RequestToClosePosition moves an open position to close-pending.
type RequestToClosePosition struct {
	Base
	PartyA     string
	QuoteID    uint64
	ClosePrice *big.Int
	Quantity   *big.Int
}

func (*RequestToClosePosition) Kind() Kind { return KindRequestToClosePosition }

// RequestToCancelCloseRequest records party A asking to withdraw a close
// request.
type RequestToCancelCloseRequest struct {
	Base
	PartyA  string
	QuoteID uint64
}

func (*RequestToCancelCloseRequest) Kind() Kind { return KindRequestToCancelCloseRequest }

// AcceptCancelCloseRequest returns a close-pending position to opened.
type AcceptCancelCloseRequest struct {
	Base
	QuoteID uint64
}

func (*AcceptCancelCloseRequest) Kind() Kind { return KindAcceptCancelCloseRequest }

// OpenPosition fills a locked quote, turning it into an open position.
// FilledAmount becomes the position quantity (partial fills shrink it).
type OpenPosition struct {
	Base
	PartyA       string
	QuoteID      uint64
	FilledAmount *big.Int
	OpenedPrice  *big.Int
}

func (*OpenPosition) Kind() Kind { return KindOpenPosition }

// FillCloseRequest partially or fully closes an open position.
type FillCloseRequest struct {
	Base
	PartyA       string
	QuoteID      uint64
	FilledAmount *big.Int
	ClosedPrice  *big.Int
}

func (*FillCloseRequest) Kind() Kind { return KindFillCloseRequest }

// ForceClosePosition carries the same payload as FillCloseRequest; the
// distinction only matters for the price-check audit trail.
type ForceClosePosition struct {
	Base
	PartyA       string
	QuoteID      uint64
	FilledAmount *big.Int
	ClosedPrice  *big.Int
}

func (*ForceClosePosition) Kind() Kind { return KindForceClosePosition }

// EmergencyClosePosition is a close executed under emergency mode.
type EmergencyClosePosition struct {
	Base
	PartyA       string
	QuoteID      uint64
	FilledAmount *big.Int
	ClosedPrice  *big.Int
}

func (*EmergencyClosePosition) Kind() Kind { return KindEmergencyClosePosition }
