package core_test

import (
	"errors"
	"math/big"
	"testing"

	"QuoteLedger/internal/core"
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/fixed"
	"QuoteLedger/internal/ledger"
	"QuoteLedger/internal/oracle"
	"QuoteLedger/internal/position"
	"QuoteLedger/internal/scope"

	"github.com/rs/zerolog"
)

const testSource = "symmio_v3"

type harness struct {
	d       *core.Dispatcher
	quotes  *oracle.StaticQuotes
	outputs chan core.Output
	block   uint64
	index   uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quotes := oracle.NewStaticQuotes()
	outputs := make(chan core.Output, 256)

	d := core.NewDispatcher(core.Config{
		Source:      testSource,
		LRUCapacity: 1024,
		Balances:    oracle.NewStaticBalances(),
		Positions:   quotes,
		RoleNames:   map[string]string{"0xhash1": "LIQUIDATOR_ROLE"},
		Logger:      zerolog.Nop(),
		PersistChan: outputs,
	})

	return &harness{d: d, quotes: quotes, outputs: outputs, block: 100}
}

// next stamps an event with strictly advancing chain coordinates.
func (h *harness) next() event.Base {
	h.block++
	h.index++
	return event.Base{
		Number:   h.block,
		Time:     int64(h.block) * 12,
		TxHash:   "0xtx" + string(rune('a'+h.index%26)) + string(rune('a'+h.index/26)),
		LogIndex: h.index,
	}
}

func (h *harness) handle(t *testing.T, evt event.Event) {
	t.Helper()
	if err := h.d.Handle(evt); err != nil {
		t.Fatalf("handle %s: %v", evt.Kind(), err)
	}
}

func (h *harness) drain() []core.Output {
	var outs []core.Output
	for {
		select {
		case o := <-h.outputs:
			outs = append(outs, o)
		default:
			return outs
		}
	}
}

func onePercent() *big.Int {
	return new(big.Int).Div(fixed.Factor(), big.NewInt(100))
}

func TestDepositCreatesEntitiesAndFansOut(t *testing.T) {
	h := newHarness(t)
	base := h.next()
	amount := fixed.Scale(500)

	h.handle(t, &event.Deposit{Base: base, Address: "0xalice", Amount: amount})

	acct := h.d.Registry().GetAccount("0xalice", testSource)
	if acct == nil || acct.Deposit.Cmp(amount) != 0 {
		t.Fatalf("account: %+v", acct)
	}
	if h.d.Registry().GetUser("0xalice", testSource) == nil {
		t.Fatal("user must be created with the account")
	}

	outs := h.drain()
	if len(outs) != 1 {
		t.Fatalf("%d outputs, want 1", len(outs))
	}
	if len(outs[0].Buckets) != 4 {
		t.Fatalf("%d buckets, want 4 account-level scopes", len(outs[0].Buckets))
	}
	for _, b := range outs[0].Buckets {
		if b.Deposit.Cmp(amount) != 0 {
			t.Errorf("%s: deposit %s", b.Key.StoreID(), b.Deposit)
		}
		if b.TradeVolume.Sign() != 0 || b.QuotesCount != 0 {
			t.Errorf("%s: deposit must not move other counters", b.Key.StoreID())
		}
	}
	if len(outs[0].Audits) != 1 {
		t.Fatalf("%d audits, want 1", len(outs[0].Audits))
	}
	bc, ok := outs[0].Audits[0].(*ledger.BalanceChange)
	if !ok || bc.Type != ledger.BalanceChangeDeposit {
		t.Fatalf("audit: %#v", outs[0].Audits[0])
	}
}

func TestReplayIsIgnored(t *testing.T) {
	h := newHarness(t)
	base := h.next()
	amount := fixed.Scale(500)
	evt := &event.Deposit{Base: base, Address: "0xalice", Amount: amount}

	h.handle(t, evt)
	h.handle(t, evt) // Same (txHash, logIndex): must be a no-op.

	acct := h.d.Registry().GetAccount("0xalice", testSource)
	if acct.Deposit.Cmp(amount) != 0 {
		t.Errorf("replay doubled the deposit: %s", acct.Deposit)
	}
	if outs := h.drain(); len(outs) != 1 {
		t.Errorf("replay emitted %d outputs, want 1", len(outs))
	}
}

func TestOrderViolationRejected(t *testing.T) {
	h := newHarness(t)
	h.handle(t, &event.Deposit{Base: h.next(), Address: "0xalice", Amount: fixed.Scale(1)})

	stale := event.Base{Number: 50, Time: 600, TxHash: "0xstale", LogIndex: 1}
	err := h.d.Handle(&event.Deposit{Base: stale, Address: "0xbob", Amount: fixed.Scale(1)})

	var orderErr *core.OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("got %v, want OrderError", err)
	}
	if h.d.Registry().GetAccount("0xbob", testSource) != nil {
		t.Error("rejected event must leave no state")
	}
}

func TestMissingQuoteRejectsEvent(t *testing.T) {
	h := newHarness(t)
	err := h.d.Handle(&event.LockQuote{Base: h.next(), QuoteID: 99, PartyB: "0xhedger"})

	var missing *core.MissingEntityError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want MissingEntityError", err)
	}
}

// openQuote walks a quote through register-symbol, send, lock, open.
func (h *harness) openQuote(t *testing.T, quoteID uint64, qty, price int64) {
	t.Helper()
	h.handle(t, &event.AddSymbol{Base: h.next(), SymbolID: 7, Name: "BTCUSDT", TradingFee: onePercent()})
	h.handle(t, &event.SendQuote{
		Base: h.next(), PartyA: "0xalice", QuoteID: quoteID, SymbolID: 7,
		PositionType: 0, OrderType: 0,
		Price: fixed.Scale(price), MarketPrice: fixed.Scale(price), Quantity: fixed.Scale(qty),
		CVA: fixed.Scale(1), LF: fixed.Scale(1), PartyAMM: fixed.Scale(1), PartyBMM: fixed.Scale(1),
	})
	h.handle(t, &event.LockQuote{Base: h.next(), QuoteID: quoteID, PartyB: "0xhedger"})
	h.handle(t, &event.OpenPosition{
		Base: h.next(), PartyA: "0xalice", QuoteID: quoteID,
		FilledAmount: fixed.Scale(qty), OpenedPrice: fixed.Scale(price),
	})
}

func TestOpenCloseLifecycleAggregates(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(10),
	})
	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(10), ClosedPrice: fixed.Scale(110),
	})

	q := h.d.Book().Get(1)
	if q.Status != position.StatusClosed {
		t.Fatalf("status %s, want Closed", q.Status)
	}
	if q.AvgClosedPrice.Cmp(fixed.Scale(110)) != 0 {
		t.Errorf("avg closed price %s, want 110e18", q.AvgClosedPrice)
	}

	// Aggregates on the global total bucket: open 10*100 + close 10*110.
	set := scope.Resolve(q.UpdateTimestamp, testSource, "0xalice", "7")
	b := h.d.Buckets().Get(set.GlobalTotal)
	if b.TradeVolume.Cmp(fixed.Scale(2100)) != 0 {
		t.Errorf("trade volume %s, want 2100e18", b.TradeVolume)
	}
	if b.OpenTradeVolume.Cmp(fixed.Scale(1000)) != 0 {
		t.Errorf("open volume %s, want 1000e18", b.OpenTradeVolume)
	}
	if b.CloseTradeVolume.Cmp(fixed.Scale(1100)) != 0 {
		t.Errorf("close volume %s, want 1100e18", b.CloseTradeVolume)
	}
	// Fee 1% of the 1000e18 open notional, platform side on global scopes.
	if b.PlatformFee.Cmp(fixed.Scale(10)) != 0 {
		t.Errorf("platform fee %s, want 10e18", b.PlatformFee)
	}
	if b.GeneratedFee.Sign() != 0 {
		t.Error("generated fee must stay off global scopes")
	}
	// Open interest fully unwound: +1000 on open, -1000 on close.
	if b.OpenInterest.Sign() != 0 {
		t.Errorf("open interest %s, want 0 after full close", b.OpenInterest)
	}

	user := h.d.Buckets().Get(set.UserTotal)
	if user.GeneratedFee.Cmp(fixed.Scale(10)) != 0 {
		t.Errorf("generated fee %s, want 10e18", user.GeneratedFee)
	}
	if user.TradeVolume.Cmp(b.TradeVolume) != 0 {
		t.Error("user and global scopes must receive equal volume deltas")
	}

	acct := h.d.Registry().GetAccount("0xalice", testSource)
	if acct.QuotesCount != 1 || acct.PositionsCount != 0 {
		t.Errorf("counters: quotes %d positions %d", acct.QuotesCount, acct.PositionsCount)
	}
}

func TestPartialCloseKeepsQuoteOpen(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(4),
	})
	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(4), ClosedPrice: fixed.Scale(110),
	})

	q := h.d.Book().Get(1)
	if q.Status != position.StatusOpened {
		t.Errorf("status %s, want Opened after partial close", q.Status)
	}
	if q.ClosedAmount.Cmp(fixed.Scale(4)) != 0 {
		t.Errorf("closed amount %s", q.ClosedAmount)
	}

	acct := h.d.Registry().GetAccount("0xalice", testSource)
	if acct.PositionsCount != 1 {
		t.Error("partial close must not decrement positions count")
	}
}

func TestUnknownSymbolSkipsVolumeButOpensQuote(t *testing.T) {
	h := newHarness(t)
	// No AddSymbol: the open must still succeed, with no fan-out.
	h.handle(t, &event.SendQuote{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1, SymbolID: 9,
		Price: fixed.Scale(100), MarketPrice: fixed.Scale(100), Quantity: fixed.Scale(10),
		CVA: fixed.Scale(1), LF: fixed.Scale(1), PartyAMM: fixed.Scale(1), PartyBMM: fixed.Scale(1),
	})
	h.handle(t, &event.LockQuote{Base: h.next(), QuoteID: 1, PartyB: "0xhedger"})
	h.drain()
	h.handle(t, &event.OpenPosition{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(10), OpenedPrice: fixed.Scale(100),
	})

	if h.d.Book().Get(1).Status != position.StatusOpened {
		t.Fatal("quote must open despite unregistered symbol")
	}
	outs := h.drain()
	if len(outs) != 1 {
		t.Fatalf("%d outputs", len(outs))
	}
	if len(outs[0].Buckets) != 0 {
		t.Error("unregistered symbol must skip bucket fan-out")
	}
}

func TestChargeFundingRate(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)
	h.drain()

	rate := onePercent()
	h.handle(t, &event.ChargeFundingRate{
		Base: h.next(), PartyB: "0xhedger",
		QuoteIDs: []uint64{1}, Rates: []*big.Int{rate},
	})

	q := h.d.Book().Get(1)
	if q.OpenPriceFundingRate.Cmp(fixed.Scale(101)) != 0 {
		t.Errorf("funding price %s, want 101e18", q.OpenPriceFundingRate)
	}

	outs := h.drain()
	if len(outs) != 1 || len(outs[0].Audits) != 1 {
		t.Fatalf("outputs %d", len(outs))
	}
	fee, ok := outs[0].Audits[0].(*ledger.PaidFundingFee)
	if !ok || fee.PaidFee.Cmp(fixed.Scale(10)) != 0 {
		t.Fatalf("funding audit: %#v", outs[0].Audits[0])
	}
}

func TestChargeFundingRateArrayMismatch(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	err := h.d.Handle(&event.ChargeFundingRate{
		Base: h.next(), PartyB: "0xhedger",
		QuoteIDs: []uint64{1, 2}, Rates: []*big.Int{onePercent()},
	})

	var consistency *core.ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("got %v, want ConsistencyError", err)
	}
}

func TestLiquidatePositionsProratesRemainder(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	// Close 4 at 110 first.
	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(4),
	})
	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(4), ClosedPrice: fixed.Scale(110),
	})
	h.drain()

	// Chain reports overall average 95 across the full quantity.
	h.quotes.Quotes[1] = oracle.QuoteSnapshot{AvgClosedPrice: fixed.Scale(95)}
	h.handle(t, &event.LiquidatePositionsPartyA{
		Base: h.next(), Liquidator: "0xliq", PartyA: "0xalice", QuoteIDs: []uint64{1},
	})

	q := h.d.Book().Get(1)
	if q.Status != position.StatusLiquidated {
		t.Fatalf("status %s", q.Status)
	}
	if q.AvgClosedPrice.Cmp(fixed.Scale(95)) != 0 {
		t.Error("chain average must replace the stored one")
	}

	outs := h.drain()
	if len(outs) != 1 {
		t.Fatalf("%d outputs", len(outs))
	}
	// Liquidated 6 at marginal price (95*10 - 110*4)/6 = 85: volume 510.
	var trade *ledger.TradeHistory
	for _, a := range outs[0].Audits {
		if th, ok := a.(*ledger.TradeHistory); ok {
			trade = th
		}
	}
	if trade == nil || trade.Volume.Cmp(fixed.Scale(510)) != 0 {
		t.Fatalf("liquidation volume: %+v", trade)
	}
	if trade.QuoteStatus != "Liquidated" {
		t.Errorf("trade status %q", trade.QuoteStatus)
	}
}

func TestLiquidateZeroRemainingRejected(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	// Fully close the quote so nothing is left to liquidate.
	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(10),
	})
	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(10), ClosedPrice: fixed.Scale(110),
	})
	h.drain()

	h.quotes.Quotes[1] = oracle.QuoteSnapshot{AvgClosedPrice: fixed.Scale(110)}
	err := h.d.Handle(&event.LiquidatePositionsPartyA{
		Base: h.next(), Liquidator: "0xliq", PartyA: "0xalice", QuoteIDs: []uint64{1},
	})

	var consistency *core.ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("got %v, want ConsistencyError", err)
	}
	if h.d.Book().Get(1).Status != position.StatusClosed {
		t.Error("rejected liquidation must not change quote status")
	}
	if outs := h.drain(); len(outs) != 0 {
		t.Errorf("rejected liquidation emitted %d outputs", len(outs))
	}
}

func TestSendQuoteCarriesDeadline(t *testing.T) {
	h := newHarness(t)
	h.handle(t, &event.SendQuote{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1, SymbolID: 7,
		Price: fixed.Scale(100), MarketPrice: fixed.Scale(100), Quantity: fixed.Scale(10),
		Deadline: 1_700_100_000,
		CVA:      fixed.Scale(1), LF: fixed.Scale(1), PartyAMM: fixed.Scale(1), PartyBMM: fixed.Scale(1),
	})

	if got := h.d.Book().Get(1).Deadline; got != 1_700_100_000 {
		t.Errorf("deadline %d, want 1700100000", got)
	}
}

func TestPriceChecksRecordFillPrices(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)

	outs := h.drain()
	open := priceChecks(outs)
	if len(open) != 1 || open[0].Event != "OpenPosition" {
		t.Fatalf("open price checks: %+v", open)
	}
	if open[0].GivenPrice.Cmp(fixed.Scale(100)) != 0 {
		t.Errorf("open price %s, want 100e18", open[0].GivenPrice)
	}

	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(10),
	})
	if rows := priceChecks(h.drain()); len(rows) != 0 {
		t.Errorf("close request emitted %d price checks, want none", len(rows))
	}

	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(10), ClosedPrice: fixed.Scale(110),
	})
	closeRows := priceChecks(h.drain())
	if len(closeRows) != 1 || closeRows[0].Event != "FillCloseRequest" {
		t.Fatalf("close price checks: %+v", closeRows)
	}
	if closeRows[0].GivenPrice.Cmp(fixed.Scale(110)) != 0 {
		t.Errorf("close price %s, want 110e18", closeRows[0].GivenPrice)
	}
}

func priceChecks(outs []core.Output) []*ledger.PriceCheck {
	var rows []*ledger.PriceCheck
	for _, o := range outs {
		for _, a := range o.Audits {
			if pc, ok := a.(*ledger.PriceCheck); ok {
				rows = append(rows, pc)
			}
		}
	}
	return rows
}

func TestFundingChargeRowForClosedQuote(t *testing.T) {
	h := newHarness(t)
	h.openQuote(t, 1, 10, 100)
	h.handle(t, &event.RequestToClosePosition{
		Base: h.next(), QuoteID: 1, ClosePrice: fixed.Scale(110), Quantity: fixed.Scale(10),
	})
	h.handle(t, &event.FillCloseRequest{
		Base: h.next(), PartyA: "0xalice", QuoteID: 1,
		FilledAmount: fixed.Scale(10), ClosedPrice: fixed.Scale(110),
	})
	h.drain()

	h.handle(t, &event.ChargeFundingRate{
		Base: h.next(), PartyB: "0xhedger",
		QuoteIDs: []uint64{1}, Rates: []*big.Int{onePercent()},
	})

	outs := h.drain()
	if len(outs) != 1 || len(outs[0].Audits) != 1 {
		t.Fatalf("outputs %d", len(outs))
	}
	fee, ok := outs[0].Audits[0].(*ledger.PaidFundingFee)
	if !ok {
		t.Fatalf("audit: %#v", outs[0].Audits[0])
	}
	if fee.PaidFee.Sign() != 0 {
		t.Errorf("closed quote paid %s, want 0", fee.PaidFee)
	}
	if fee.QuoteID != 1 {
		t.Errorf("quote id %d", fee.QuoteID)
	}
}

func TestRoleGrantUsesNameMap(t *testing.T) {
	h := newHarness(t)
	h.handle(t, &event.RoleGranted{Base: h.next(), Role: "0xhash1", User: "0xops"})
	h.handle(t, &event.RoleGranted{Base: h.next(), Role: "0xunmapped", User: "0xops"})

	outs := h.drain()
	first := outs[0].Audits[0].(*ledger.GrantedRole)
	if first.Role != "LIQUIDATOR_ROLE" || !first.Granted {
		t.Errorf("mapped role: %+v", first)
	}
	second := outs[1].Audits[0].(*ledger.GrantedRole)
	if second.Role != "0xunmapped" {
		t.Errorf("unmapped role must keep its hash: %+v", second)
	}
}

func TestPartyBAllocationSkipsBuckets(t *testing.T) {
	h := newHarness(t)
	h.handle(t, &event.AllocatePartyB{Base: h.next(), PartyB: "0xhedger", Amount: fixed.Scale(100)})

	acct := h.d.Registry().GetAccount("0xhedger", testSource)
	if acct == nil || acct.Allocated.Cmp(fixed.Scale(100)) != 0 {
		t.Fatalf("party-B account: %+v", acct)
	}
	outs := h.drain()
	if len(outs) != 1 || len(outs[0].Buckets) != 0 {
		t.Error("party-B allocations must not touch aggregation buckets")
	}
}

func TestSymbolFeeChangeAudited(t *testing.T) {
	h := newHarness(t)
	h.handle(t, &event.AddSymbol{Base: h.next(), SymbolID: 7, Name: "BTCUSDT", TradingFee: onePercent()})
	h.drain()

	newFee := new(big.Int).Div(fixed.Factor(), big.NewInt(200))
	h.handle(t, &event.SetSymbolTradingFee{Base: h.next(), SymbolID: 7, TradingFee: newFee})

	if h.d.Symbols().Get(7).TradingFee.Cmp(newFee) != 0 {
		t.Error("fee must update")
	}
	outs := h.drain()
	if len(outs[0].Audits) != 1 {
		t.Fatal("fee change must emit an audit row")
	}
	if _, ok := outs[0].Audits[0].(*ledger.SymbolFeeChange); !ok {
		t.Fatalf("audit: %#v", outs[0].Audits[0])
	}
}
