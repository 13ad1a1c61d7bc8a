package event

import "math/big"

// Deposit credits collateral to an address. The account (and its user) are
// created lazily if this is the address's first contact with the ledger.
type Deposit struct {
	Base
	Address string
	Amount  *big.Int // Fixed-point 10^18
}

func (*Deposit) Kind() Kind { return KindDeposit }

// Withdraw debits collateral from an address.
type Withdraw struct {
	Base
	Address string
	Amount  *big.Int
}

func (*Withdraw) Kind() Kind { return KindWithdraw }

// AllocatePartyA moves deposited collateral into trading balance.
type AllocatePartyA struct {
	Base
	Address string
	Amount  *big.Int
}

func (*AllocatePartyA) Kind() Kind { return KindAllocatePartyA }

// DeallocatePartyA moves trading balance back to the deposit pool.
type DeallocatePartyA struct {
	Base
	Address string
	Amount  *big.Int
}

func (*DeallocatePartyA) Kind() Kind { return KindDeallocatePartyA }

// AllocatePartyB is the party-B-initiated allocation. Party-B balance events
// mutate account and user totals only; they do not fan out into aggregation
// buckets.
type AllocatePartyB struct {
	Base
	PartyB string
	Amount *big.Int
}

func (*AllocatePartyB) Kind() Kind { return KindAllocatePartyB }

// AllocateForPartyB is an allocation performed on a party B's behalf.
type AllocateForPartyB struct {
	Base
	PartyB string
	Amount *big.Int
}

func (*AllocateForPartyB) Kind() Kind { return KindAllocateForPartyB }

// DeallocateForPartyB reverses an AllocateForPartyB.
type DeallocateForPartyB struct {
	Base
	PartyB string
	Amount *big.Int
}

func (*DeallocateForPartyB) Kind() Kind { return KindDeallocateForPartyB }
