package event

import "math/big"

// ChargeFundingRate applies one funding charge to a batch of quotes.
// QuoteIDs and Rates are parallel arrays; each rate is a signed 10^18-scaled
// fraction applied to that quote's funding-tracked open price.
type ChargeFundingRate struct {
	Base
	PartyB   string
	QuoteIDs []uint64
	Rates    []*big.Int
}

func (*ChargeFundingRate) Kind() Kind { return KindChargeFundingRate }

// LiquidatePositionsPartyA liquidates the remaining open quantity of each
// listed quote as part of a party-A liquidation.
type LiquidatePositionsPartyA struct {
	Base
	Liquidator string
	PartyA     string
	QuoteIDs   []uint64
}

func (*LiquidatePositionsPartyA) Kind() Kind { return KindLiquidatePositionsPartyA }

// LiquidatePositionsPartyB is the party-B counterpart of
// LiquidatePositionsPartyA.
type LiquidatePositionsPartyB struct {
	Base
	Liquidator string
	PartyB     string
	PartyA     string
	QuoteIDs   []uint64
}

func (*LiquidatePositionsPartyB) Kind() Kind { return KindLiquidatePositionsPartyB }
