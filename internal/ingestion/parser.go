package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"QuoteLedger/internal/event"
)

// ParseRawEvent decodes a RawEvent's JSON payload into the typed event for
// the given kind. Monetary fields arrive as base-10 decimal strings because
// chain amounts are 10^18-scaled and overflow int64.
func ParseRawEvent(raw RawEvent, kind event.Kind) (event.Event, error) {
	switch kind {
	case event.KindDeposit, event.KindWithdraw, event.KindAllocatePartyA, event.KindDeallocatePartyA:
		return parsePartyABalance(raw.Data, kind)
	case event.KindAllocatePartyB, event.KindAllocateForPartyB, event.KindDeallocateForPartyB:
		return parsePartyBBalance(raw.Data, kind)
	case event.KindSendQuote:
		return parseSendQuote(raw.Data)
	case event.KindLockQuote:
		return parseLockQuote(raw.Data)
	case event.KindUnlockQuote, event.KindAcceptCancelRequest, event.KindExpireQuote, event.KindAcceptCancelCloseRequest:
		return parseQuoteRef(raw.Data, kind)
	case event.KindRequestToCancelQuote, event.KindRequestToCancelCloseRequest:
		return parsePartyAQuoteRef(raw.Data, kind)
	case event.KindRequestToClosePosition:
		return parseRequestToClose(raw.Data)
	case event.KindOpenPosition:
		return parseOpenPosition(raw.Data)
	case event.KindFillCloseRequest, event.KindForceClosePosition, event.KindEmergencyClosePosition:
		return parseCloseFill(raw.Data, kind)
	case event.KindChargeFundingRate:
		return parseChargeFundingRate(raw.Data)
	case event.KindLiquidatePositionsPartyA:
		return parseLiquidatePositionsPartyA(raw.Data)
	case event.KindLiquidatePositionsPartyB:
		return parseLiquidatePositionsPartyB(raw.Data)
	case event.KindLiquidatePartyA:
		return parseLiquidatePartyA(raw.Data)
	case event.KindLiquidatePartyB:
		return parseLiquidatePartyB(raw.Data)
	case event.KindSetSymbolsPrices:
		return parseSetSymbolsPrices(raw.Data)
	case event.KindDisputeForLiquidation:
		return parseDispute(raw.Data)
	case event.KindAddSymbol:
		return parseAddSymbol(raw.Data)
	case event.KindSetSymbolTradingFee:
		return parseSetSymbolTradingFee(raw.Data)
	case event.KindRoleGranted, event.KindRoleRevoked:
		return parseRoleChange(raw.Data, kind)
	default:
		return nil, fmt.Errorf("unknown event kind: %s", kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the upstream chain-event publisher.
// Every payload carries the block envelope: block number, block timestamp
// (seconds), transaction hash, and log index.

type baseJSON struct {
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
	TxHash      string `json:"transaction_hash"`
	LogIndex    uint32 `json:"log_index"`
}

func (b baseJSON) toBase() (event.Base, error) {
	if b.TxHash == "" {
		return event.Base{}, fmt.Errorf("missing transaction_hash")
	}
	return event.Base{
		Number:   b.BlockNumber,
		Time:     b.Timestamp,
		TxHash:   b.TxHash,
		LogIndex: b.LogIndex,
	}, nil
}

// parseBig parses a base-10 decimal string into a big.Int. Negative values
// are allowed; funding rates are signed.
func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}

func parseBigs(field string, in []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(in))
	for i, s := range in {
		v, err := parseBig(fmt.Sprintf("%s[%d]", field, i), s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type partyABalanceJSON struct {
	baseJSON
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func parsePartyABalance(data []byte, kind event.Kind) (event.Event, error) {
	var j partyABalanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	if j.Address == "" {
		return nil, fmt.Errorf("parse %s: missing address", kind)
	}
	amount, err := parseBig("amount", j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	switch kind {
	case event.KindDeposit:
		return &event.Deposit{Base: base, Address: j.Address, Amount: amount}, nil
	case event.KindWithdraw:
		return &event.Withdraw{Base: base, Address: j.Address, Amount: amount}, nil
	case event.KindAllocatePartyA:
		return &event.AllocatePartyA{Base: base, Address: j.Address, Amount: amount}, nil
	default:
		return &event.DeallocatePartyA{Base: base, Address: j.Address, Amount: amount}, nil
	}
}

type partyBBalanceJSON struct {
	baseJSON
	PartyB string `json:"party_b"`
	Amount string `json:"amount"`
}

func parsePartyBBalance(data []byte, kind event.Kind) (event.Event, error) {
	var j partyBBalanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	if j.PartyB == "" {
		return nil, fmt.Errorf("parse %s: missing party_b", kind)
	}
	amount, err := parseBig("amount", j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	switch kind {
	case event.KindAllocatePartyB:
		return &event.AllocatePartyB{Base: base, PartyB: j.PartyB, Amount: amount}, nil
	case event.KindAllocateForPartyB:
		return &event.AllocateForPartyB{Base: base, PartyB: j.PartyB, Amount: amount}, nil
	default:
		return &event.DeallocateForPartyB{Base: base, PartyB: j.PartyB, Amount: amount}, nil
	}
}

type sendQuoteJSON struct {
	baseJSON
	PartyA          string   `json:"party_a"`
	QuoteID         uint64   `json:"quote_id"`
	PartyBWhitelist []string `json:"party_b_whitelist"`
	SymbolID        uint64   `json:"symbol_id"`
	PositionType    int32    `json:"position_type"`
	OrderType       int32    `json:"order_type"`
	Price           string   `json:"price"`
	MarketPrice     string   `json:"market_price"`
	Deadline        int64    `json:"deadline"`
	Quantity        string   `json:"quantity"`
	CVA             string   `json:"cva"`
	PartyAMM        string   `json:"party_a_mm"`
	PartyBMM        string   `json:"party_b_mm"`
	LF              string   `json:"lf"`
}

func parseSendQuote(data []byte) (*event.SendQuote, error) {
	var j sendQuoteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SendQuote: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse SendQuote: %w", err)
	}

	fields := map[string]string{
		"price":        j.Price,
		"market_price": j.MarketPrice,
		"quantity":     j.Quantity,
		"cva":          j.CVA,
		"party_a_mm":   j.PartyAMM,
		"party_b_mm":   j.PartyBMM,
		"lf":           j.LF,
	}
	parsed := make(map[string]*big.Int, len(fields))
	for name, s := range fields {
		v, err := parseBig(name, s)
		if err != nil {
			return nil, fmt.Errorf("parse SendQuote: %w", err)
		}
		parsed[name] = v
	}

	return &event.SendQuote{
		Base:            base,
		PartyA:          j.PartyA,
		QuoteID:         j.QuoteID,
		PartyBWhitelist: j.PartyBWhitelist,
		SymbolID:        j.SymbolID,
		PositionType:    j.PositionType,
		OrderType:       j.OrderType,
		Price:           parsed["price"],
		MarketPrice:     parsed["market_price"],
		Deadline:        j.Deadline,
		Quantity:        parsed["quantity"],
		CVA:             parsed["cva"],
		PartyAMM:        parsed["party_a_mm"],
		PartyBMM:        parsed["party_b_mm"],
		LF:              parsed["lf"],
	}, nil
}

type lockQuoteJSON struct {
	baseJSON
	QuoteID uint64 `json:"quote_id"`
	PartyB  string `json:"party_b"`
}

func parseLockQuote(data []byte) (*event.LockQuote, error) {
	var j lockQuoteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LockQuote: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse LockQuote: %w", err)
	}
	return &event.LockQuote{Base: base, QuoteID: j.QuoteID, PartyB: j.PartyB}, nil
}

type quoteRefJSON struct {
	baseJSON
	QuoteID uint64 `json:"quote_id"`
	PartyA  string `json:"party_a,omitempty"`
}

func parseQuoteRef(data []byte, kind event.Kind) (event.Event, error) {
	var j quoteRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	switch kind {
	case event.KindUnlockQuote:
		return &event.UnlockQuote{Base: base, QuoteID: j.QuoteID}, nil
	case event.KindAcceptCancelRequest:
		return &event.AcceptCancelRequest{Base: base, QuoteID: j.QuoteID}, nil
	case event.KindExpireQuote:
		return &event.ExpireQuote{Base: base, QuoteID: j.QuoteID}, nil
	default:
		return &event.AcceptCancelCloseRequest{Base: base, QuoteID: j.QuoteID}, nil
	}
}

func parsePartyAQuoteRef(data []byte, kind event.Kind) (event.Event, error) {
	var j quoteRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	if kind == event.KindRequestToCancelQuote {
		return &event.RequestToCancelQuote{Base: base, PartyA: j.PartyA, QuoteID: j.QuoteID}, nil
	}
	return &event.RequestToCancelCloseRequest{Base: base, PartyA: j.PartyA, QuoteID: j.QuoteID}, nil
}

type requestToCloseJSON struct {
	baseJSON
	PartyA     string `json:"party_a"`
	QuoteID    uint64 `json:"quote_id"`
	ClosePrice string `json:"close_price"`
	Quantity   string `json:"quantity"`
}

func parseRequestToClose(data []byte) (*event.RequestToClosePosition, error) {
	var j requestToCloseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RequestToClosePosition: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse RequestToClosePosition: %w", err)
	}
	closePrice, err := parseBig("close_price", j.ClosePrice)
	if err != nil {
		return nil, fmt.Errorf("parse RequestToClosePosition: %w", err)
	}
	quantity, err := parseBig("quantity", j.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse RequestToClosePosition: %w", err)
	}
	return &event.RequestToClosePosition{
		Base:       base,
		PartyA:     j.PartyA,
		QuoteID:    j.QuoteID,
		ClosePrice: closePrice,
		Quantity:   quantity,
	}, nil
}

type openPositionJSON struct {
	baseJSON
	PartyA       string `json:"party_a"`
	QuoteID      uint64 `json:"quote_id"`
	FilledAmount string `json:"filled_amount"`
	OpenedPrice  string `json:"opened_price"`
}

func parseOpenPosition(data []byte) (*event.OpenPosition, error) {
	var j openPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}
	filled, err := parseBig("filled_amount", j.FilledAmount)
	if err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}
	price, err := parseBig("opened_price", j.OpenedPrice)
	if err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}
	return &event.OpenPosition{
		Base:         base,
		PartyA:       j.PartyA,
		QuoteID:      j.QuoteID,
		FilledAmount: filled,
		OpenedPrice:  price,
	}, nil
}

type closeFillJSON struct {
	baseJSON
	PartyA       string `json:"party_a"`
	QuoteID      uint64 `json:"quote_id"`
	FilledAmount string `json:"filled_amount"`
	ClosedPrice  string `json:"closed_price"`
}

func parseCloseFill(data []byte, kind event.Kind) (event.Event, error) {
	var j closeFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	filled, err := parseBig("filled_amount", j.FilledAmount)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	price, err := parseBig("closed_price", j.ClosedPrice)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	switch kind {
	case event.KindFillCloseRequest:
		return &event.FillCloseRequest{Base: base, PartyA: j.PartyA, QuoteID: j.QuoteID, FilledAmount: filled, ClosedPrice: price}, nil
	case event.KindForceClosePosition:
		return &event.ForceClosePosition{Base: base, PartyA: j.PartyA, QuoteID: j.QuoteID, FilledAmount: filled, ClosedPrice: price}, nil
	default:
		return &event.EmergencyClosePosition{Base: base, PartyA: j.PartyA, QuoteID: j.QuoteID, FilledAmount: filled, ClosedPrice: price}, nil
	}
}

type chargeFundingJSON struct {
	baseJSON
	PartyB   string   `json:"party_b"`
	QuoteIDs []uint64 `json:"quote_ids"`
	Rates    []string `json:"rates"`
}

func parseChargeFundingRate(data []byte) (*event.ChargeFundingRate, error) {
	var j chargeFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ChargeFundingRate: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse ChargeFundingRate: %w", err)
	}
	rates, err := parseBigs("rates", j.Rates)
	if err != nil {
		return nil, fmt.Errorf("parse ChargeFundingRate: %w", err)
	}
	return &event.ChargeFundingRate{
		Base:     base,
		PartyB:   j.PartyB,
		QuoteIDs: j.QuoteIDs,
		Rates:    rates,
	}, nil
}

type liquidatePositionsAJSON struct {
	baseJSON
	Liquidator string   `json:"liquidator"`
	PartyA     string   `json:"party_a"`
	QuoteIDs   []uint64 `json:"quote_ids"`
}

func parseLiquidatePositionsPartyA(data []byte) (*event.LiquidatePositionsPartyA, error) {
	var j liquidatePositionsAJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidatePositionsPartyA: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse LiquidatePositionsPartyA: %w", err)
	}
	return &event.LiquidatePositionsPartyA{
		Base:       base,
		Liquidator: j.Liquidator,
		PartyA:     j.PartyA,
		QuoteIDs:   j.QuoteIDs,
	}, nil
}

type liquidatePositionsBJSON struct {
	baseJSON
	Liquidator string   `json:"liquidator"`
	PartyB     string   `json:"party_b"`
	PartyA     string   `json:"party_a"`
	QuoteIDs   []uint64 `json:"quote_ids"`
}

func parseLiquidatePositionsPartyB(data []byte) (*event.LiquidatePositionsPartyB, error) {
	var j liquidatePositionsBJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidatePositionsPartyB: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse LiquidatePositionsPartyB: %w", err)
	}
	return &event.LiquidatePositionsPartyB{
		Base:       base,
		Liquidator: j.Liquidator,
		PartyB:     j.PartyB,
		PartyA:     j.PartyA,
		QuoteIDs:   j.QuoteIDs,
	}, nil
}

type liquidatePartyJSON struct {
	baseJSON
	Liquidator string `json:"liquidator"`
	PartyA     string `json:"party_a"`
	PartyB     string `json:"party_b,omitempty"`
}

func parseLiquidatePartyA(data []byte) (*event.LiquidatePartyA, error) {
	var j liquidatePartyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidatePartyA: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse LiquidatePartyA: %w", err)
	}
	return &event.LiquidatePartyA{Base: base, Liquidator: j.Liquidator, PartyA: j.PartyA}, nil
}

func parseLiquidatePartyB(data []byte) (*event.LiquidatePartyB, error) {
	var j liquidatePartyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidatePartyB: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse LiquidatePartyB: %w", err)
	}
	return &event.LiquidatePartyB{Base: base, Liquidator: j.Liquidator, PartyB: j.PartyB, PartyA: j.PartyA}, nil
}

func parseSetSymbolsPrices(data []byte) (*event.SetSymbolsPrices, error) {
	var j liquidatePartyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetSymbolsPrices: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse SetSymbolsPrices: %w", err)
	}
	return &event.SetSymbolsPrices{Base: base, Liquidator: j.Liquidator, PartyA: j.PartyA}, nil
}

func parseDispute(data []byte) (*event.DisputeForLiquidation, error) {
	var j liquidatePartyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DisputeForLiquidation: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse DisputeForLiquidation: %w", err)
	}
	return &event.DisputeForLiquidation{Base: base, PartyA: j.PartyA}, nil
}

type addSymbolJSON struct {
	baseJSON
	SymbolID   uint64 `json:"symbol_id"`
	Name       string `json:"name"`
	TradingFee string `json:"trading_fee"`
}

func parseAddSymbol(data []byte) (*event.AddSymbol, error) {
	var j addSymbolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddSymbol: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse AddSymbol: %w", err)
	}
	fee, err := parseBig("trading_fee", j.TradingFee)
	if err != nil {
		return nil, fmt.Errorf("parse AddSymbol: %w", err)
	}
	return &event.AddSymbol{Base: base, SymbolID: j.SymbolID, Name: j.Name, TradingFee: fee}, nil
}

type setFeeJSON struct {
	baseJSON
	SymbolID   uint64 `json:"symbol_id"`
	TradingFee string `json:"trading_fee"`
}

func parseSetSymbolTradingFee(data []byte) (*event.SetSymbolTradingFee, error) {
	var j setFeeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetSymbolTradingFee: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse SetSymbolTradingFee: %w", err)
	}
	fee, err := parseBig("trading_fee", j.TradingFee)
	if err != nil {
		return nil, fmt.Errorf("parse SetSymbolTradingFee: %w", err)
	}
	return &event.SetSymbolTradingFee{Base: base, SymbolID: j.SymbolID, TradingFee: fee}, nil
}

type roleJSON struct {
	baseJSON
	Role string `json:"role"`
	User string `json:"user"`
}

func parseRoleChange(data []byte, kind event.Kind) (event.Event, error) {
	var j roleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	if kind == event.KindRoleGranted {
		return &event.RoleGranted{Base: base, Role: j.Role, User: j.User}, nil
	}
	return &event.RoleRevoked{Base: base, Role: j.Role, User: j.User}, nil
}
