package ingestion_test

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		IngestID: "test-ingest",
		Subject:  "test",
		Data:     data,
		Received: time.Now(),
		AckFunc:  func() {},
		NakFunc:  func() {},
	}
}

func envelope() map[string]interface{} {
	return map[string]interface{}{
		"block_number":     uint64(18_500_000),
		"timestamp":        int64(1_700_000_000),
		"transaction_hash": "0xabc123",
		"log_index":        uint32(7),
	}
}

func TestParseDeposit(t *testing.T) {
	payload := envelope()
	payload["address"] = "0xa11ce"
	payload["amount"] = "2500000000000000000000" // 2500 * 10^18

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, event.KindDeposit)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}

	if dep.Address != "0xa11ce" {
		t.Errorf("address: got %s, want 0xa11ce", dep.Address)
	}
	want, _ := new(big.Int).SetString("2500000000000000000000", 10)
	if dep.Amount.Cmp(want) != 0 {
		t.Errorf("amount: got %s, want %s", dep.Amount, want)
	}
	if dep.BlockNumber() != 18_500_000 {
		t.Errorf("block: got %d, want 18500000", dep.BlockNumber())
	}
	if dep.Ref() != "0xabc123-7" {
		t.Errorf("ref: got %s, want 0xabc123-7", dep.Ref())
	}
	if dep.Kind() != event.KindDeposit {
		t.Errorf("kind: got %v, want Deposit", dep.Kind())
	}
}

func TestParseSendQuote(t *testing.T) {
	payload := envelope()
	payload["party_a"] = "0xa11ce"
	payload["quote_id"] = uint64(42)
	payload["party_b_whitelist"] = []string{"0xb0b"}
	payload["symbol_id"] = uint64(3)
	payload["position_type"] = int32(1)
	payload["order_type"] = int32(0)
	payload["price"] = "50000000000000000000000"
	payload["market_price"] = "49900000000000000000000"
	payload["deadline"] = int64(1_700_003_600)
	payload["quantity"] = "10000000000000000000"
	payload["cva"] = "1000000000000000000"
	payload["party_a_mm"] = "2000000000000000000"
	payload["party_b_mm"] = "3000000000000000000"
	payload["lf"] = "500000000000000000"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, event.KindSendQuote)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sq, ok := evt.(*event.SendQuote)
	if !ok {
		t.Fatalf("expected *event.SendQuote, got %T", evt)
	}

	if sq.QuoteID != 42 {
		t.Errorf("quote_id: got %d, want 42", sq.QuoteID)
	}
	if sq.SymbolID != 3 {
		t.Errorf("symbol_id: got %d, want 3", sq.SymbolID)
	}
	if sq.PositionType != 1 {
		t.Errorf("position_type: got %d, want 1", sq.PositionType)
	}
	if len(sq.PartyBWhitelist) != 1 || sq.PartyBWhitelist[0] != "0xb0b" {
		t.Errorf("party_b_whitelist: got %v", sq.PartyBWhitelist)
	}
	wantQty, _ := new(big.Int).SetString("10000000000000000000", 10)
	if sq.Quantity.Cmp(wantQty) != 0 {
		t.Errorf("quantity: got %s, want %s", sq.Quantity, wantQty)
	}
}

func TestParseChargeFundingRateSignedRates(t *testing.T) {
	payload := envelope()
	payload["party_b"] = "0xb0b"
	payload["quote_ids"] = []uint64{1, 2}
	payload["rates"] = []string{"10000000000000000", "-25000000000000000"}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, event.KindChargeFundingRate)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cf, ok := evt.(*event.ChargeFundingRate)
	if !ok {
		t.Fatalf("expected *event.ChargeFundingRate, got %T", evt)
	}

	if len(cf.QuoteIDs) != 2 || len(cf.Rates) != 2 {
		t.Fatalf("arrays: got %d ids, %d rates", len(cf.QuoteIDs), len(cf.Rates))
	}
	if cf.Rates[1].Sign() != -1 {
		t.Errorf("rates[1]: expected negative, got %s", cf.Rates[1])
	}
}

func TestParseOpenPosition(t *testing.T) {
	payload := envelope()
	payload["party_a"] = "0xa11ce"
	payload["quote_id"] = uint64(9)
	payload["filled_amount"] = "5000000000000000000"
	payload["opened_price"] = "110000000000000000000"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, event.KindOpenPosition)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	op, ok := evt.(*event.OpenPosition)
	if !ok {
		t.Fatalf("expected *event.OpenPosition, got %T", evt)
	}
	if op.QuoteID != 9 {
		t.Errorf("quote_id: got %d, want 9", op.QuoteID)
	}
	wantPrice, _ := new(big.Int).SetString("110000000000000000000", 10)
	if op.OpenedPrice.Cmp(wantPrice) != 0 {
		t.Errorf("opened_price: got %s, want %s", op.OpenedPrice, wantPrice)
	}
}

func TestParseLiquidatePositionsPartyB(t *testing.T) {
	payload := envelope()
	payload["liquidator"] = "0x11c"
	payload["party_b"] = "0xb0b"
	payload["party_a"] = "0xa11ce"
	payload["quote_ids"] = []uint64{4, 5, 6}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, event.KindLiquidatePositionsPartyB)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lq, ok := evt.(*event.LiquidatePositionsPartyB)
	if !ok {
		t.Fatalf("expected *event.LiquidatePositionsPartyB, got %T", evt)
	}
	if len(lq.QuoteIDs) != 3 {
		t.Errorf("quote_ids: got %d, want 3", len(lq.QuoteIDs))
	}
	if lq.PartyB != "0xb0b" || lq.PartyA != "0xa11ce" {
		t.Errorf("parties: got partyB=%s partyA=%s", lq.PartyB, lq.PartyA)
	}
}

func TestParseMissingTxHash_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"block_number": uint64(1),
		"timestamp":    int64(1),
		"log_index":    uint32(0),
		"address":      "0xa11ce",
		"amount":       "100",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, event.KindDeposit); err == nil {
		t.Fatal("expected error for missing transaction_hash")
	}
}

func TestParseInvalidAmount_Fails(t *testing.T) {
	payload := envelope()
	payload["address"] = "0xa11ce"
	payload["amount"] = "not-a-number"

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, event.KindWithdraw); err == nil {
		t.Fatal("expected error for invalid amount")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	if _, err := ingestion.ParseRawEvent(raw, event.KindDeposit); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseUnknownKind_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	if _, err := ingestion.ParseRawEvent(raw, event.KindUnknown); err == nil {
		t.Fatal("expected error for unknown event kind")
	}
}

func TestKindForSubject(t *testing.T) {
	subjects := ingestion.DefaultSubjects()

	kind, ok := ingestion.KindForSubject("symmio.quotes.open.base", subjects)
	if !ok {
		t.Fatal("expected subject match")
	}
	if kind != event.KindOpenPosition {
		t.Errorf("kind: got %v, want OpenPosition", kind)
	}

	if _, ok := ingestion.KindForSubject("unrelated.subject", subjects); ok {
		t.Error("expected no match for unrelated subject")
	}
}
