// Package core is the single-threaded event processor. It consumes ordered
// chain events exactly once, mutates the entity state (accounts, users,
// quotes, symbols), fans volume into the aggregation buckets, and emits one
// Output per applied event to the persistence worker.
package core

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"QuoteLedger/internal/event"
	"QuoteLedger/internal/fixed"
	"QuoteLedger/internal/history"
	"QuoteLedger/internal/ledger"
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/oracle"
	"QuoteLedger/internal/position"
	"QuoteLedger/internal/scope"

	"github.com/rs/zerolog"
)

// Output is the per-event persistence unit: every bucket the event touched
// plus its audit records. The persist channel send is blocking so the
// processor stalls rather than losing an applied event.
type Output struct {
	Ref         string
	Kind        event.Kind
	BlockNumber uint64
	LogIndex    uint32
	Timestamp   int64
	Buckets     []*history.Bucket
	Audits      []ledger.AuditRecord
}

// Dispatcher applies events to the ledger state. All mutation happens on the
// goroutine calling Handle; nothing here is safe for concurrent use.
type Dispatcher struct {
	source string // Account source label for this deployment

	registry *ledger.Registry
	book     *position.Book
	symbols  *ledger.SymbolStore
	buckets  *history.Store

	balances  oracle.BalanceOracle
	positions oracle.PositionOracle

	guard *ProcessedGuard
	order *BlockOrderValidator

	roleNames map[string]string // Role hash -> human-readable name

	metrics *observability.Metrics
	logger  zerolog.Logger

	persistChan chan<- Output
}

// Config wires a Dispatcher. Oracles and the DB checker may be nil; missing
// oracles degrade to lenient skips, a nil checker disables the cold dedup
// tier.
type Config struct {
	Source      string
	LRUCapacity int
	DBChecker   DBProcessedChecker
	Balances    oracle.BalanceOracle
	Positions   oracle.PositionOracle
	RoleNames   map[string]string
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	PersistChan chan<- Output
}

func NewDispatcher(cfg Config) *Dispatcher {
	capacity := cfg.LRUCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	roleNames := make(map[string]string, len(cfg.RoleNames))
	for hash, name := range cfg.RoleNames {
		roleNames[hash] = name
	}

	return &Dispatcher{
		source:      cfg.Source,
		registry:    ledger.NewRegistry(),
		book:        position.NewBook(),
		symbols:     ledger.NewSymbolStore(),
		buckets:     history.NewStore(),
		balances:    cfg.Balances,
		positions:   cfg.Positions,
		guard:       NewProcessedGuard(capacity, cfg.DBChecker),
		order:       NewBlockOrderValidator(),
		roleNames:   roleNames,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		persistChan: cfg.PersistChan,
	}
}

// Registry exposes the entity state for queries and tests.
func (d *Dispatcher) Registry() *ledger.Registry { return d.registry }

// Book exposes the quote book for queries and tests.
func (d *Dispatcher) Book() *position.Book { return d.book }

// Symbols exposes the symbol store.
func (d *Dispatcher) Symbols() *ledger.SymbolStore { return d.symbols }

// Buckets exposes the aggregation store.
func (d *Dispatcher) Buckets() *history.Store { return d.buckets }

// Guard exposes the processed-event guard for warmup.
func (d *Dispatcher) Guard() *ProcessedGuard { return d.guard }

// Order exposes the block-order validator for recovery.
func (d *Dispatcher) Order() *BlockOrderValidator { return d.order }

// Handle runs one event through the pipeline: order check, dedup check,
// dispatch, mark processed, emit. Events that fail dispatch leave no state
// behind; handlers validate every referenced entity before mutating.
func (d *Dispatcher) Handle(evt event.Event) error {
	start := time.Now()
	kind := evt.Kind().String()
	ref := evt.Ref()

	isDup := d.guard.IsDuplicate(kind, ref)

	if err := d.order.Validate(d.source, evt.BlockNumber(), evt.Index(), ref, isDup); err != nil {
		if d.metrics != nil {
			d.metrics.EventsRejected.WithLabelValues(kind, "order").Inc()
			d.metrics.OrderViolations.WithLabelValues(d.source).Inc()
		}
		return err
	}

	if isDup {
		if d.metrics != nil {
			d.metrics.EventsRejected.WithLabelValues(kind, "duplicate").Inc()
		}
		return nil
	}

	out := Output{
		Ref:         ref,
		Kind:        evt.Kind(),
		BlockNumber: evt.BlockNumber(),
		LogIndex:    evt.Index(),
		Timestamp:   evt.Timestamp(),
	}

	if err := d.dispatch(evt, &out); err != nil {
		if d.metrics != nil {
			d.metrics.EventsRejected.WithLabelValues(kind, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch %s: %w", kind, err)
	}

	d.guard.MarkProcessed(kind, ref)

	if d.persistChan != nil {
		d.persistChan <- out
	}

	if d.metrics != nil {
		d.metrics.EventsApplied.WithLabelValues(kind).Inc()
		d.metrics.EventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		d.metrics.LastBlock.Set(float64(evt.BlockNumber()))
		d.metrics.QuotesTracked.Set(float64(d.book.Len()))
		for _, b := range out.Buckets {
			d.metrics.BucketsUpdated.WithLabelValues(b.Key.Kind.String()).Inc()
		}
		for _, a := range out.Audits {
			d.metrics.AuditsEmitted.WithLabelValues(a.AuditKind()).Inc()
		}
	}

	return nil
}

func (d *Dispatcher) dispatch(evt event.Event, out *Output) error {
	switch e := evt.(type) {
	case *event.Deposit:
		return d.handleBalanceChange(e.Base, e.Address, e.Amount, ledger.BalanceChangeDeposit, out)
	case *event.Withdraw:
		return d.handleBalanceChange(e.Base, e.Address, e.Amount, ledger.BalanceChangeWithdraw, out)
	case *event.AllocatePartyA:
		return d.handleBalanceChange(e.Base, e.Address, e.Amount, ledger.BalanceChangeAllocatePartyA, out)
	case *event.DeallocatePartyA:
		return d.handleBalanceChange(e.Base, e.Address, e.Amount, ledger.BalanceChangeDeallocatePartyA, out)
	case *event.AllocatePartyB:
		return d.handlePartyBAllocation(e.Base, e.PartyB, e.Amount, true)
	case *event.AllocateForPartyB:
		return d.handlePartyBAllocation(e.Base, e.PartyB, e.Amount, true)
	case *event.DeallocateForPartyB:
		return d.handlePartyBAllocation(e.Base, e.PartyB, e.Amount, false)
	case *event.SendQuote:
		return d.handleSendQuote(e, out)
	case *event.LockQuote:
		return d.handleLockQuote(e)
	case *event.UnlockQuote:
		return d.handleUnlockQuote(e)
	case *event.AcceptCancelRequest:
		return d.handleAcceptCancelRequest(e)
	case *event.ExpireQuote:
		return d.handleExpireQuote(e)
	case *event.RequestToCancelQuote:
		return d.handleRequestToCancelQuote(e)
	case *event.RequestToClosePosition:
		return d.handleRequestToClosePosition(e)
	case *event.RequestToCancelCloseRequest:
		return d.handleRequestToCancelCloseRequest(e)
	case *event.AcceptCancelCloseRequest:
		return d.handleAcceptCancelCloseRequest(e)
	case *event.OpenPosition:
		return d.handleOpenPosition(e, out)
	case *event.FillCloseRequest:
		return d.handleCloseFill(e.Base, e.Kind(), e.QuoteID, e.FilledAmount, e.ClosedPrice, out)
	case *event.ForceClosePosition:
		return d.handleCloseFill(e.Base, e.Kind(), e.QuoteID, e.FilledAmount, e.ClosedPrice, out)
	case *event.EmergencyClosePosition:
		return d.handleCloseFill(e.Base, e.Kind(), e.QuoteID, e.FilledAmount, e.ClosedPrice, out)
	case *event.ChargeFundingRate:
		return d.handleChargeFundingRate(e, out)
	case *event.LiquidatePositionsPartyA:
		return d.handleLiquidatePositions(e.Base, e.QuoteIDs, position.LiquidatedSidePartyA, out)
	case *event.LiquidatePositionsPartyB:
		return d.handleLiquidatePositions(e.Base, e.QuoteIDs, position.LiquidatedSidePartyB, out)
	case *event.LiquidatePartyA:
		return d.handleLiquidatePartyA(e.Base, e.PartyA, e.Liquidator, false, out)
	case *event.SetSymbolsPrices:
		return d.handleLiquidatePartyA(e.Base, e.PartyA, e.Liquidator, false, out)
	case *event.DisputeForLiquidation:
		return d.handleLiquidatePartyA(e.Base, e.PartyA, "", true, out)
	case *event.LiquidatePartyB:
		return d.handleLiquidatePartyB(e, out)
	case *event.AddSymbol:
		return d.handleAddSymbol(e)
	case *event.SetSymbolTradingFee:
		return d.handleSetSymbolTradingFee(e, out)
	case *event.RoleGranted:
		return d.handleRoleChange(e.Base, e.Role, e.User, true, out)
	case *event.RoleRevoked:
		return d.handleRoleChange(e.Base, e.Role, e.User, false, out)
	default:
		return fmt.Errorf("unknown event type: %T", evt)
	}
}

func stampOf(b event.Base) position.Stamp {
	return position.Stamp{
		Timestamp:   b.Timestamp(),
		BlockNumber: b.BlockNumber(),
		TxHash:      b.Transaction(),
	}
}

// mustQuote loads a quote or fails the event.
func (d *Dispatcher) mustQuote(id uint64, ref string) (*position.Quote, error) {
	q := d.book.Get(id)
	if q == nil {
		return nil, &MissingEntityError{Entity: "quote", ID: strconv.FormatUint(id, 10), Ref: ref}
	}
	return q, nil
}

// touchQuoteAccount refreshes activity on the quote's owning account.
func (d *Dispatcher) touchQuoteAccount(q *position.Quote, timestamp int64) {
	if acct := d.registry.GetAccount(q.AccountID, q.AccountSource); acct != nil {
		d.registry.Touch(acct, timestamp)
	}
}

// handleBalanceChange processes deposits, withdrawals, and party-A
// (de)allocations: update the account totals, fan the amount into the four
// account-level scopes, and record one audit row.
func (d *Dispatcher) handleBalanceChange(base event.Base, address string, amount *big.Int, kind ledger.BalanceChangeType, out *Output) error {
	ts := base.Timestamp()
	acct, _ := d.registry.GetOrCreateAccount(address, d.source, ts, base.Transaction())

	delta := history.Delta{}
	switch kind {
	case ledger.BalanceChangeDeposit:
		acct.Deposit.Add(acct.Deposit, amount)
		delta.Deposit = amount
	case ledger.BalanceChangeWithdraw:
		acct.Withdraw.Add(acct.Withdraw, amount)
		delta.Withdraw = amount
	case ledger.BalanceChangeAllocatePartyA:
		acct.Allocated.Add(acct.Allocated, amount)
		delta.Allocate = amount
	case ledger.BalanceChangeDeallocatePartyA:
		acct.Deallocated.Add(acct.Deallocated, amount)
		delta.Deallocate = amount
	}
	d.registry.Touch(acct, ts)

	set := scope.Resolve(ts, d.source, acct.UserID, "")
	out.Buckets = append(out.Buckets, d.buckets.Apply(set, ts, delta)...)

	out.Audits = append(out.Audits, &ledger.BalanceChange{
		ID:          base.Ref(),
		Account:     address,
		Amount:      new(big.Int).Set(amount),
		Type:        kind,
		Timestamp:   ts,
		BlockNumber: base.BlockNumber(),
		Transaction: base.Transaction(),
	})
	return nil
}

// handlePartyBAllocation updates party-B account totals. Party-B capital
// movements stay off the aggregation buckets; they are hedger inventory,
// not user flow.
func (d *Dispatcher) handlePartyBAllocation(base event.Base, partyB string, amount *big.Int, allocate bool) error {
	ts := base.Timestamp()
	acct, _ := d.registry.GetOrCreateAccount(partyB, d.source, ts, base.Transaction())
	if allocate {
		acct.Allocated.Add(acct.Allocated, amount)
	} else {
		acct.Deallocated.Add(acct.Deallocated, amount)
	}
	d.registry.Touch(acct, ts)
	return nil
}

func (d *Dispatcher) handleSendQuote(e *event.SendQuote, out *Output) error {
	ts := e.Timestamp()
	acct, _ := d.registry.GetOrCreateAccount(e.PartyA, d.source, ts, e.Transaction())
	acct.QuotesCount++
	d.registry.Touch(acct, ts)

	q := &position.Quote{
		ID:              e.QuoteID,
		AccountID:       e.PartyA,
		UserID:          acct.UserID,
		AccountSource:   d.source,
		SymbolID:        e.SymbolID,
		Side:            position.Side(e.PositionType),
		OrderType:       e.OrderType,
		PartyBWhitelist: e.PartyBWhitelist,
		Price:           new(big.Int).Set(e.Price),
		MarketPrice:     new(big.Int).Set(e.MarketPrice),
		Quantity:        new(big.Int).Set(e.Quantity),
		Deadline:        e.Deadline,
		CVA:             new(big.Int).Set(e.CVA),
		LF:              new(big.Int).Set(e.LF),
		PartyAMM:        new(big.Int).Set(e.PartyAMM),
		PartyBMM:        new(big.Int).Set(e.PartyBMM),
		ClosedAmount:    new(big.Int),
		AvgClosedPrice:  new(big.Int),
		PaidFundingRate: new(big.Int),
		Status:          position.StatusPending,
		Timestamp:       ts,
		UpdateTimestamp: ts,
		BlockNumber:     e.BlockNumber(),
		TxHash:          e.Transaction(),
	}
	d.book.Create(q)

	set := scope.Resolve(ts, d.source, q.UserID, strconv.FormatUint(q.SymbolID, 10))
	out.Buckets = append(out.Buckets, d.buckets.Apply(set, ts, history.Delta{QuotesCount: 1})...)
	return nil
}

func (d *Dispatcher) handleLockQuote(e *event.LockQuote) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.Lock(e.PartyB, stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleUnlockQuote(e *event.UnlockQuote) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.Unlock(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleAcceptCancelRequest(e *event.AcceptCancelRequest) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.AcceptCancel(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleExpireQuote(e *event.ExpireQuote) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.Expire(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleRequestToCancelQuote(e *event.RequestToCancelQuote) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.RequestCancel(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleRequestToClosePosition(e *event.RequestToClosePosition) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.RequestClose(e.ClosePrice, e.Quantity, stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleRequestToCancelCloseRequest(e *event.RequestToCancelCloseRequest) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.RequestCancelClose(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleAcceptCancelCloseRequest(e *event.AcceptCancelCloseRequest) error {
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}
	if err := q.AcceptCancelClose(stampOf(e.Base)); err != nil {
		return err
	}
	d.touchQuoteAccount(q, e.Timestamp())
	return nil
}

// handleOpenPosition fills a quote. The locked margin values are refreshed
// from the position oracle when available, since partial fills rescale them
// on chain. Volume, fee, and open interest fan out only when the symbol is
// registered; an unknown symbol skips those side effects but still opens
// the quote.
func (d *Dispatcher) handleOpenPosition(e *event.OpenPosition, out *Output) error {
	ts := e.Timestamp()
	q, err := d.mustQuote(e.QuoteID, e.Ref())
	if err != nil {
		return err
	}

	if snap, ok := d.quoteSnapshot(e.QuoteID); ok {
		q.CVA = new(big.Int).Set(snap.CVA)
		q.LF = new(big.Int).Set(snap.LF)
		q.PartyAMM = new(big.Int).Set(snap.PartyAMM)
		q.PartyBMM = new(big.Int).Set(snap.PartyBMM)
	} else if d.metrics != nil {
		d.metrics.EventsSkipped.WithLabelValues(e.Kind().String(), "no_quote_snapshot").Inc()
	}

	if err := q.Open(e.FilledAmount, e.OpenedPrice, stampOf(e.Base)); err != nil {
		return err
	}

	acct, _ := d.registry.GetOrCreateAccount(q.AccountID, q.AccountSource, ts, e.Transaction())
	acct.PositionsCount++
	d.registry.Touch(acct, ts)

	out.Audits = append(out.Audits, &ledger.PriceCheck{
		ID:          e.Ref(),
		Event:       e.Kind().String(),
		QuoteID:     q.ID,
		GivenPrice:  new(big.Int).Set(e.OpenedPrice),
		Timestamp:   ts,
		Transaction: e.Transaction(),
	})

	sym := d.symbols.Get(q.SymbolID)
	if sym == nil {
		if d.metrics != nil {
			d.metrics.EventsSkipped.WithLabelValues(e.Kind().String(), "unknown_symbol").Inc()
		}
		d.logger.Warn().Uint64("quote_id", q.ID).Uint64("symbol_id", q.SymbolID).
			Msg("open fill on unregistered symbol, volume side effects skipped")
		return nil
	}

	volume := fixed.MulDescale(e.FilledAmount, e.OpenedPrice)
	fee := fixed.MulDescale(volume, sym.TradingFee)

	set := scope.Resolve(ts, q.AccountSource, q.UserID, strconv.FormatUint(q.SymbolID, 10))
	out.Buckets = append(out.Buckets, d.buckets.Apply(set, ts, history.Delta{
		TradeVolume:     volume,
		OpenTradeVolume: volume,
		Fee:             fee,
		OpenInterest:    volume,
	})...)

	out.Audits = append(out.Audits, &ledger.TradeHistory{
		ID:          q.AccountID + "-" + e.Ref(),
		Account:     q.AccountID,
		QuoteID:     q.ID,
		QuoteStatus: q.Status.String(),
		Volume:      volume,
		Timestamp:   ts,
		BlockNumber: e.BlockNumber(),
		Transaction: e.Transaction(),
	})
	return nil
}

// handleCloseFill settles one close fill (cooperative, forced, or
// emergency). Trade volume is the fill notional at the close price; open
// interest unwinds at the open price, mirroring what the open added.
func (d *Dispatcher) handleCloseFill(base event.Base, kind event.Kind, quoteID uint64, filledAmount, closedPrice *big.Int, out *Output) error {
	ts := base.Timestamp()
	q, err := d.mustQuote(quoteID, base.Ref())
	if err != nil {
		return err
	}

	if err := q.ApplyClose(filledAmount, closedPrice, stampOf(base)); err != nil {
		return err
	}

	out.Audits = append(out.Audits, &ledger.PriceCheck{
		ID:          base.Ref(),
		Event:       kind.String(),
		QuoteID:     q.ID,
		GivenPrice:  new(big.Int).Set(closedPrice),
		Timestamp:   ts,
		Transaction: base.Transaction(),
	})

	if q.Status == position.StatusClosed {
		if acct := d.registry.GetAccount(q.AccountID, q.AccountSource); acct != nil {
			acct.PositionsCount--
		}
	}
	d.touchQuoteAccount(q, ts)

	if d.symbols.Get(q.SymbolID) == nil {
		if d.metrics != nil {
			d.metrics.EventsSkipped.WithLabelValues("close_fill", "unknown_symbol").Inc()
		}
		return nil
	}

	volume := fixed.MulDescale(filledAmount, closedPrice)
	openNotional := fixed.MulDescale(filledAmount, q.OpenPrice)

	set := scope.Resolve(ts, q.AccountSource, q.UserID, strconv.FormatUint(q.SymbolID, 10))
	out.Buckets = append(out.Buckets, d.buckets.Apply(set, ts, history.Delta{
		TradeVolume:      volume,
		CloseTradeVolume: volume,
		OpenInterest:     new(big.Int).Neg(openNotional),
	})...)

	out.Audits = append(out.Audits, &ledger.TradeHistory{
		ID:          q.AccountID + "-" + base.Ref(),
		Account:     q.AccountID,
		QuoteID:     q.ID,
		QuoteStatus: q.Status.String(),
		Volume:      volume,
		Timestamp:   ts,
		BlockNumber: base.BlockNumber(),
		Transaction: base.Transaction(),
	})
	return nil
}

// handleChargeFundingRate applies one funding charge per listed quote.
// The quote list is validated up front so a single unknown quote rejects
// the whole event without partial application.
func (d *Dispatcher) handleChargeFundingRate(e *event.ChargeFundingRate, out *Output) error {
	if len(e.QuoteIDs) != len(e.Rates) {
		return &ConsistencyError{
			Ref:    e.Ref(),
			Reason: fmt.Sprintf("%d quote ids but %d rates", len(e.QuoteIDs), len(e.Rates)),
		}
	}

	quotes := make([]*position.Quote, len(e.QuoteIDs))
	for i, id := range e.QuoteIDs {
		q, err := d.mustQuote(id, e.Ref())
		if err != nil {
			return err
		}
		quotes[i] = q
	}

	stamp := stampOf(e.Base)
	for i, q := range quotes {
		paid, err := q.ApplyFunding(e.Rates[i], stamp)
		if err != nil {
			return err
		}
		// One row per listed quote; a quote without live exposure pays zero
		// but is still recorded.
		out.Audits = append(out.Audits, &ledger.PaidFundingFee{
			ID:          fmt.Sprintf("%s-%d", e.Transaction(), q.ID),
			QuoteID:     q.ID,
			User:        q.UserID,
			RateApplied: new(big.Int).Set(e.Rates[i]),
			PaidFee:     paid,
			Timestamp:   e.Timestamp(),
			Transaction: e.Transaction(),
		})
	}
	return nil
}

// handleLiquidatePositions unwinds the remaining quantity of each listed
// quote. The chain-reported average closed price comes from the position
// oracle; a quote with no snapshot is skipped individually since the chain
// already settled it, but a quote with nothing left to unwind rejects the
// whole event.
func (d *Dispatcher) handleLiquidatePositions(base event.Base, quoteIDs []uint64, side position.LiquidatedSide, out *Output) error {
	ts := base.Timestamp()

	quotes := make([]*position.Quote, len(quoteIDs))
	for i, id := range quoteIDs {
		q, err := d.mustQuote(id, base.Ref())
		if err != nil {
			return err
		}
		quotes[i] = q
	}

	stamp := stampOf(base)
	for _, q := range quotes {
		snap, ok := d.quoteSnapshot(q.ID)
		if !ok {
			if d.metrics != nil {
				d.metrics.EventsSkipped.WithLabelValues("liquidate_positions", "no_quote_snapshot").Inc()
			}
			d.logger.Warn().Uint64("quote_id", q.ID).Msg("liquidation without quote snapshot, skipped")
			continue
		}

		amount, price, err := q.Liquidate(snap.AvgClosedPrice, side, stamp)
		if err != nil {
			return &ConsistencyError{
				Ref:    base.Ref(),
				Reason: fmt.Sprintf("liquidate quote %d: %v", q.ID, err),
			}
		}

		if acct := d.registry.GetAccount(q.AccountID, q.AccountSource); acct != nil {
			acct.PositionsCount--
			d.registry.Touch(acct, ts)
		}

		if d.symbols.Get(q.SymbolID) == nil {
			continue
		}

		volume := fixed.MulDescale(amount, price)
		openNotional := fixed.MulDescale(amount, q.OpenPrice)

		set := scope.Resolve(ts, q.AccountSource, q.UserID, strconv.FormatUint(q.SymbolID, 10))
		out.Buckets = append(out.Buckets, d.buckets.Apply(set, ts, history.Delta{
			TradeVolume:      volume,
			CloseTradeVolume: volume,
			OpenInterest:     new(big.Int).Neg(openNotional),
		})...)

		out.Audits = append(out.Audits, &ledger.TradeHistory{
			ID:          fmt.Sprintf("%s-%s-%d", q.AccountID, base.Ref(), q.ID),
			Account:     q.AccountID,
			QuoteID:     q.ID,
			QuoteStatus: q.Status.String(),
			Volume:      volume,
			Timestamp:   ts,
			BlockNumber: base.BlockNumber(),
			Transaction: base.Transaction(),
		})
	}
	return nil
}

// handleLiquidatePartyA records a party-A liquidation audit row with the
// balance snapshot read from the balance oracle. A failed lookup records
// the row with nil balances rather than dropping the liquidation.
func (d *Dispatcher) handleLiquidatePartyA(base event.Base, partyA, liquidator string, disputed bool, out *Output) error {
	rec := &ledger.PartyALiquidation{
		ID:          base.Ref(),
		PartyA:      partyA,
		Liquidator:  liquidator,
		Disputed:    disputed,
		Timestamp:   base.Timestamp(),
		Transaction: base.Transaction(),
	}

	if snap, ok := d.balanceSnapshotPartyA(partyA); ok {
		rec.AllocatedBalance = snap.AllocatedBalance
		rec.CVA = snap.CVA
		rec.LF = snap.LF
		rec.PendingCVA = snap.PendingCVA
		rec.PendingLF = snap.PendingLF
	} else if d.metrics != nil {
		d.metrics.EventsSkipped.WithLabelValues("liquidate_party_a", "no_balance_snapshot").Inc()
	}

	if acct := d.registry.GetAccount(partyA, d.source); acct != nil {
		d.registry.Touch(acct, base.Timestamp())
	}

	out.Audits = append(out.Audits, rec)
	return nil
}

func (d *Dispatcher) handleLiquidatePartyB(e *event.LiquidatePartyB, out *Output) error {
	rec := &ledger.PartyBLiquidation{
		ID:          e.Ref(),
		PartyB:      e.PartyB,
		PartyA:      e.PartyA,
		Liquidator:  e.Liquidator,
		Timestamp:   e.Timestamp(),
		Transaction: e.Transaction(),
	}

	if d.balances != nil {
		if snap, ok := d.balances.PartyBBalance(e.PartyB, e.PartyA); ok {
			rec.AllocatedBalance = snap.AllocatedBalance
		} else if d.metrics != nil {
			d.metrics.EventsSkipped.WithLabelValues(e.Kind().String(), "no_balance_snapshot").Inc()
		}
	}

	out.Audits = append(out.Audits, rec)
	return nil
}

func (d *Dispatcher) handleAddSymbol(e *event.AddSymbol) error {
	d.symbols.Add(e.SymbolID, e.Name, e.TradingFee, e.Timestamp())
	return nil
}

func (d *Dispatcher) handleSetSymbolTradingFee(e *event.SetSymbolTradingFee, out *Output) error {
	if !d.symbols.SetFee(e.SymbolID, e.TradingFee, e.Timestamp()) {
		if d.metrics != nil {
			d.metrics.EventsSkipped.WithLabelValues(e.Kind().String(), "unknown_symbol").Inc()
		}
		d.logger.Warn().Uint64("symbol_id", e.SymbolID).Msg("fee change for unregistered symbol")
		return nil
	}

	out.Audits = append(out.Audits, &ledger.SymbolFeeChange{
		ID:          e.Ref(),
		SymbolID:    e.SymbolID,
		TradingFee:  new(big.Int).Set(e.TradingFee),
		Timestamp:   e.Timestamp(),
		BlockNumber: e.BlockNumber(),
	})
	return nil
}

func (d *Dispatcher) handleRoleChange(base event.Base, role, user string, granted bool, out *Output) error {
	name := d.roleNames[role]
	if name == "" {
		name = role
	}

	out.Audits = append(out.Audits, &ledger.GrantedRole{
		ID:              name + "_" + user,
		Role:            name,
		User:            user,
		Granted:         granted,
		UpdateTimestamp: base.Timestamp(),
	})
	return nil
}

func (d *Dispatcher) quoteSnapshot(id uint64) (oracle.QuoteSnapshot, bool) {
	if d.positions == nil {
		return oracle.QuoteSnapshot{}, false
	}
	return d.positions.Quote(id)
}

func (d *Dispatcher) balanceSnapshotPartyA(partyA string) (oracle.BalanceSnapshot, bool) {
	if d.balances == nil {
		return oracle.BalanceSnapshot{}, false
	}
	return d.balances.PartyABalance(partyA)
}
