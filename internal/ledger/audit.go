package ledger

import "math/big"

// AuditRecord is one append-only row persisted alongside the aggregation
// buckets. Records are JSON-encoded into the audit table keyed by
// (AuditKind, AuditID), so IDs only need to be unique within a kind.
type AuditRecord interface {
	AuditID() string
	AuditKind() string
}

// BalanceChangeType labels the direction of a balance movement.
type BalanceChangeType string

const (
	BalanceChangeDeposit          BalanceChangeType = "DEPOSIT"
	BalanceChangeWithdraw         BalanceChangeType = "WITHDRAW"
	BalanceChangeAllocatePartyA   BalanceChangeType = "ALLOCATE_PARTY_A"
	BalanceChangeDeallocatePartyA BalanceChangeType = "DEALLOCATE_PARTY_A"
)

// BalanceChange records one deposit, withdrawal, allocation or deallocation.
type BalanceChange struct {
	ID          string            `json:"id"` // txhash-logindex
	Account     string            `json:"account"`
	Amount      *big.Int          `json:"amount"`
	Type        BalanceChangeType `json:"type"`
	Timestamp   int64             `json:"timestamp"`
	BlockNumber uint64            `json:"block_number"`
	Transaction string            `json:"transaction"`
}

func (r *BalanceChange) AuditID() string   { return r.ID }
func (r *BalanceChange) AuditKind() string { return "balance_change" }

// TradeHistory records one volume-bearing fill against a quote.
type TradeHistory struct {
	ID          string   `json:"id"` // account-txhash-logindex
	Account     string   `json:"account"`
	QuoteID     uint64   `json:"quote_id"`
	QuoteStatus string   `json:"quote_status"`
	Volume      *big.Int `json:"volume"`
	Timestamp   int64    `json:"timestamp"`
	BlockNumber uint64   `json:"block_number"`
	Transaction string   `json:"transaction"`
}

func (r *TradeHistory) AuditID() string   { return r.ID }
func (r *TradeHistory) AuditKind() string { return "trade_history" }

// PriceCheck records the executed price of an open or close fill, kept for
// off-chain slippage analysis.
type PriceCheck struct {
	ID          string   `json:"id"` // txhash-logindex
	Event       string   `json:"event"`
	QuoteID     uint64   `json:"quote_id"`
	GivenPrice  *big.Int `json:"given_price"`
	Timestamp   int64    `json:"timestamp"`
	Transaction string   `json:"transaction"`
}

func (r *PriceCheck) AuditID() string   { return r.ID }
func (r *PriceCheck) AuditKind() string { return "price_check" }

// PaidFundingFee records one funding charge applied to one quote.
type PaidFundingFee struct {
	ID          string   `json:"id"` // txhash-quoteID
	QuoteID     uint64   `json:"quote_id"`
	User        string   `json:"user"`
	RateApplied *big.Int `json:"rate_applied"`
	PaidFee     *big.Int `json:"paid_fee"`
	Timestamp   int64    `json:"timestamp"`
	Transaction string   `json:"transaction"`
}

func (r *PaidFundingFee) AuditID() string   { return r.ID }
func (r *PaidFundingFee) AuditKind() string { return "paid_funding_fee" }

// PartyALiquidation snapshots a party-A balance at liquidation start.
type PartyALiquidation struct {
	ID               string   `json:"id"` // txhash-logindex
	PartyA           string   `json:"party_a"`
	Liquidator       string   `json:"liquidator"`
	AllocatedBalance *big.Int `json:"allocated_balance"`
	CVA              *big.Int `json:"cva"`
	LF               *big.Int `json:"lf"`
	PendingCVA       *big.Int `json:"pending_cva"`
	PendingLF        *big.Int `json:"pending_lf"`
	Disputed         bool     `json:"disputed"`
	Timestamp        int64    `json:"timestamp"`
	Transaction      string   `json:"transaction"`
}

func (r *PartyALiquidation) AuditID() string   { return r.ID }
func (r *PartyALiquidation) AuditKind() string { return "party_a_liquidation" }

// PartyBLiquidation snapshots a party-B balance at liquidation time.
type PartyBLiquidation struct {
	ID               string   `json:"id"` // txhash-logindex
	PartyB           string   `json:"party_b"`
	PartyA           string   `json:"party_a"`
	Liquidator       string   `json:"liquidator"`
	AllocatedBalance *big.Int `json:"allocated_balance"`
	Timestamp        int64    `json:"timestamp"`
	Transaction      string   `json:"transaction"`
}

func (r *PartyBLiquidation) AuditID() string   { return r.ID }
func (r *PartyBLiquidation) AuditKind() string { return "party_b_liquidation" }

// GrantedRole tracks the latest grant state of one (role, user) pair.
type GrantedRole struct {
	ID              string `json:"id"` // role_user
	Role            string `json:"role"`
	User            string `json:"user"`
	Granted         bool   `json:"granted"`
	UpdateTimestamp int64  `json:"update_timestamp"`
}

func (r *GrantedRole) AuditID() string   { return r.ID }
func (r *GrantedRole) AuditKind() string { return "granted_role" }

// SymbolFeeChange records a symbol fee update for fee reconstruction.
type SymbolFeeChange struct {
	ID          string   `json:"id"` // txhash-logindex
	SymbolID    uint64   `json:"symbol_id"`
	TradingFee  *big.Int `json:"trading_fee"`
	Timestamp   int64    `json:"timestamp"`
	BlockNumber uint64   `json:"block_number"`
}

func (r *SymbolFeeChange) AuditID() string   { return r.ID }
func (r *SymbolFeeChange) AuditKind() string { return "symbol_fee_change" }
