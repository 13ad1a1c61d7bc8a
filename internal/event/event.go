// Package event defines the typed on-chain events consumed by the
// aggregation ledger. Events arrive in block order (non-decreasing block
// number, ascending log index within a block) and are applied exactly once.
package event

import "fmt"

// Kind discriminates event payloads.
type Kind int32

const (
	KindUnknown Kind = iota

	// Balance events
	KindDeposit
	KindWithdraw
	KindAllocatePartyA
	KindDeallocatePartyA
	KindAllocatePartyB
	KindAllocateForPartyB
	KindDeallocateForPartyB

	// Quote lifecycle events
	KindSendQuote
	KindLockQuote
	KindUnlockQuote
	KindAcceptCancelRequest
	KindExpireQuote
	KindRequestToCancelQuote
	KindRequestToClosePosition
	KindRequestToCancelCloseRequest
	KindAcceptCancelCloseRequest
	KindOpenPosition
	KindFillCloseRequest
	KindForceClosePosition
	KindEmergencyClosePosition

	// Batch events
	KindChargeFundingRate
	KindLiquidatePositionsPartyA
	KindLiquidatePositionsPartyB

	// Liquidation bookkeeping events
	KindLiquidatePartyA
	KindLiquidatePartyB
	KindSetSymbolsPrices
	KindDisputeForLiquidation

	// Administrative events
	KindAddSymbol
	KindSetSymbolTradingFee
	KindRoleGranted
	KindRoleRevoked
)

// Base carries the block metadata common to every event.
type Base struct {
	Number   uint64 // Block number
	Time     int64  // Block timestamp (seconds)
	TxHash   string
	LogIndex uint32
}

// Ref returns the stable (transactionHash, logIndex) identity of the event,
// used as the processed-event dedup key.
func (b Base) Ref() string {
	return fmt.Sprintf("%s-%d", b.TxHash, b.LogIndex)
}

// BlockNumber returns the block the event was emitted in.
func (b Base) BlockNumber() uint64 { return b.Number }

// Timestamp returns the block timestamp in seconds.
func (b Base) Timestamp() int64 { return b.Time }

// Index returns the log index within the block.
func (b Base) Index() uint32 { return b.LogIndex }

// Transaction returns the transaction hash.
func (b Base) Transaction() string { return b.TxHash }

// Event is implemented by all inbound events.
type Event interface {
	Kind() Kind
	Ref() string
	BlockNumber() uint64
	Timestamp() int64
	Index() uint32
	Transaction() string
}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "Deposit"
	case KindWithdraw:
		return "Withdraw"
	case KindAllocatePartyA:
		return "AllocatePartyA"
	case KindDeallocatePartyA:
		return "DeallocatePartyA"
	case KindAllocatePartyB:
		return "AllocatePartyB"
	case KindAllocateForPartyB:
		return "AllocateForPartyB"
	case KindDeallocateForPartyB:
		return "DeallocateForPartyB"
	case KindSendQuote:
		return "SendQuote"
	case KindLockQuote:
		return "LockQuote"
	case KindUnlockQuote:
		return "UnlockQuote"
	case KindAcceptCancelRequest:
		return "AcceptCancelRequest"
	case KindExpireQuote:
		return "ExpireQuote"
	case KindRequestToCancelQuote:
		return "RequestToCancelQuote"
	case KindRequestToClosePosition:
		return "RequestToClosePosition"
	case KindRequestToCancelCloseRequest:
		return "RequestToCancelCloseRequest"
	case KindAcceptCancelCloseRequest:
		return "AcceptCancelCloseRequest"
	case KindOpenPosition:
		return "OpenPosition"
	case KindFillCloseRequest:
		return "FillCloseRequest"
	case KindForceClosePosition:
		return "ForceClosePosition"
	case KindEmergencyClosePosition:
		return "EmergencyClosePosition"
	case KindChargeFundingRate:
		return "ChargeFundingRate"
	case KindLiquidatePositionsPartyA:
		return "LiquidatePositionsPartyA"
	case KindLiquidatePositionsPartyB:
		return "LiquidatePositionsPartyB"
	case KindLiquidatePartyA:
		return "LiquidatePartyA"
	case KindLiquidatePartyB:
		return "LiquidatePartyB"
	case KindSetSymbolsPrices:
		return "SetSymbolsPrices"
	case KindDisputeForLiquidation:
		return "DisputeForLiquidation"
	case KindAddSymbol:
		return "AddSymbol"
	case KindSetSymbolTradingFee:
		return "SetSymbolTradingFee"
	case KindRoleGranted:
		return "RoleGranted"
	case KindRoleRevoked:
		return "RoleRevoked"
	default:
		return "Unknown"
	}
}
