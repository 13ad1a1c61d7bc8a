package query

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// weiDecimals is the fixed-point scale of on-chain amounts.
const weiDecimals = 18

// BucketResponse is one aggregation bucket for API queries. Monetary fields
// are rendered in token units (10^18 wei shifted down) as decimal strings,
// so callers never deal with raw fixed-point integers.
type BucketResponse struct {
	ScopeKind        string `json:"scope_kind"`
	BucketID         string `json:"bucket_id"`
	Day              int64  `json:"day"`
	AccountSource    string `json:"account_source"`
	User             string `json:"user,omitempty"`
	Symbol           string `json:"symbol,omitempty"`
	TradeVolume      string `json:"trade_volume"`
	OpenTradeVolume  string `json:"open_trade_volume"`
	CloseTradeVolume string `json:"close_trade_volume"`
	Deposit          string `json:"deposit"`
	Withdraw         string `json:"withdraw"`
	Allocate         string `json:"allocate"`
	Deallocate       string `json:"deallocate"`
	QuotesCount      int64  `json:"quotes_count"`
	GeneratedFee     string `json:"generated_fee"`
	PlatformFee      string `json:"platform_fee"`
	OpenInterest     string `json:"open_interest"`
	Timestamp        int64  `json:"timestamp"`
	UpdateTimestamp  int64  `json:"update_timestamp"`
}

// AuditResponse is one audit record for API queries. The payload is returned
// verbatim as stored.
type AuditResponse struct {
	Kind        string          `json:"kind"`
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	BlockNumber int64           `json:"block_number"`
	Timestamp   int64           `json:"timestamp"`
}

// tokenUnits converts a NUMERIC(78,0) wei string into token units. Values
// that fail to parse are returned unchanged rather than erroring a whole row.
func tokenUnits(wei string) string {
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return wei
	}
	return d.Shift(-weiDecimals).String()
}
