package event

import "math/big"

// AddSymbol registers a tradeable symbol with its fee rate
// (parts per 10^18).
type AddSymbol struct {
	Base
	SymbolID   uint64
	Name       string
	TradingFee *big.Int
}

func (*AddSymbol) Kind() Kind { return KindAddSymbol }

// SetSymbolTradingFee updates a symbol's fee rate.
type SetSymbolTradingFee struct {
	Base
	SymbolID   uint64
	TradingFee *big.Int
}

func (*SetSymbolTradingFee) Kind() Kind { return KindSetSymbolTradingFee }

// RoleGranted records an access-control grant.
type RoleGranted struct {
	Base
	Role string // Role identifier hash
	User string
}

func (*RoleGranted) Kind() Kind { return KindRoleGranted }

// RoleRevoked records an access-control revocation.
type RoleRevoked struct {
	Base
	Role string
	User string
}

func (*RoleRevoked) Kind() Kind { return KindRoleRevoked }

// LiquidatePartyA starts a party-A liquidation flow.
type LiquidatePartyA struct {
	Base
	Liquidator string
	PartyA     string
}

func (*LiquidatePartyA) Kind() Kind { return KindLiquidatePartyA }

// LiquidatePartyB snapshots party-B balances at liquidation time.
type LiquidatePartyB struct {
	Base
	Liquidator string
	PartyB     string
	PartyA     string
}

func (*LiquidatePartyB) Kind() Kind { return KindLiquidatePartyB }

// SetSymbolsPrices fixes settlement prices during a party-A liquidation;
// the ledger uses it to snapshot party-A balances.
type SetSymbolsPrices struct {
	Base
	Liquidator string
	PartyA     string
}

func (*SetSymbolsPrices) Kind() Kind { return KindSetSymbolsPrices }

// DisputeForLiquidation records a dispute raised against a party-A
// liquidation.
type DisputeForLiquidation struct {
	Base
	PartyA string
}

func (*DisputeForLiquidation) Kind() Kind { return KindDisputeForLiquidation }
