// Package oracle defines the read-side views of on-chain state the event
// processor cannot derive from events alone: margin snapshots taken at open
// time and balance snapshots taken at liquidation time. Implementations
// query the chain or a node-backed cache; tests use the static fakes.
package oracle

import "math/big"

// BalanceSnapshot is a party's margin balance at a point in time.
type BalanceSnapshot struct {
	AllocatedBalance *big.Int
	CVA              *big.Int
	LF               *big.Int
	PendingCVA       *big.Int
	PendingLF        *big.Int
}

// QuoteSnapshot carries the chain's view of a quote's locked values and
// average closed price, read when events alone are not authoritative.
type QuoteSnapshot struct {
	CVA            *big.Int
	LF             *big.Int
	PartyAMM       *big.Int
	PartyBMM       *big.Int
	AvgClosedPrice *big.Int
}

// BalanceOracle reads party balances. A false second return means the
// lookup failed; callers skip the dependent side effects rather than abort.
type BalanceOracle interface {
	PartyABalance(partyA string) (BalanceSnapshot, bool)
	PartyBBalance(partyB, partyA string) (BalanceSnapshot, bool)
}

// PositionOracle reads quote state.
type PositionOracle interface {
	Quote(quoteID uint64) (QuoteSnapshot, bool)
}

// StaticBalances is a map-backed BalanceOracle.
type StaticBalances struct {
	PartyA map[string]BalanceSnapshot
	PartyB map[string]BalanceSnapshot // keyed partyB_partyA
}

func NewStaticBalances() *StaticBalances {
	return &StaticBalances{
		PartyA: make(map[string]BalanceSnapshot),
		PartyB: make(map[string]BalanceSnapshot),
	}
}

func (s *StaticBalances) PartyABalance(partyA string) (BalanceSnapshot, bool) {
	snap, ok := s.PartyA[partyA]
	return snap, ok
}

func (s *StaticBalances) PartyBBalance(partyB, partyA string) (BalanceSnapshot, bool) {
	snap, ok := s.PartyB[partyB+"_"+partyA]
	return snap, ok
}

// StaticQuotes is a map-backed PositionOracle.
type StaticQuotes struct {
	Quotes map[uint64]QuoteSnapshot
}

func NewStaticQuotes() *StaticQuotes {
	return &StaticQuotes{Quotes: make(map[uint64]QuoteSnapshot)}
}

func (s *StaticQuotes) Quote(quoteID uint64) (QuoteSnapshot, bool) {
	snap, ok := s.Quotes[quoteID]
	return snap, ok
}
