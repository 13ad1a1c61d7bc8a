// Package history owns the derived aggregation buckets: per-scope
// accumulators of trade volume, fees, balance flows, and open interest.
// Buckets are created lazily with all counters zero and are only ever
// mutated through Store.Apply; no other component writes them.
package history

import (
	"QuoteLedger/internal/scope"
	"math/big"
)

// Bucket accumulates derived metrics for one scope key.
type Bucket struct {
	Key scope.Key

	TradeVolume      *big.Int
	OpenTradeVolume  *big.Int
	CloseTradeVolume *big.Int

	Deposit    *big.Int
	Withdraw   *big.Int
	Allocate   *big.Int
	Deallocate *big.Int

	QuotesCount int64

	GeneratedFee *big.Int
	PlatformFee  *big.Int

	OpenInterest *big.Int

	Timestamp       int64
	UpdateTimestamp int64
}

func newBucket(key scope.Key, timestamp int64) *Bucket {
	return &Bucket{
		Key:              key,
		TradeVolume:      new(big.Int),
		OpenTradeVolume:  new(big.Int),
		CloseTradeVolume: new(big.Int),
		Deposit:          new(big.Int),
		Withdraw:         new(big.Int),
		Allocate:         new(big.Int),
		Deallocate:       new(big.Int),
		GeneratedFee:     new(big.Int),
		PlatformFee:      new(big.Int),
		OpenInterest:     new(big.Int),
		Timestamp:        timestamp,
		UpdateTimestamp:  timestamp,
	}
}

// Delta is the signed set of counter changes one event contributes.
// Nil fields are untouched. Fee routes to PlatformFee on global scopes and
// GeneratedFee on user scopes. OpenInterest is signed: opening volume adds,
// closing/liquidating volume subtracts.
type Delta struct {
	TradeVolume      *big.Int
	OpenTradeVolume  *big.Int
	CloseTradeVolume *big.Int

	Deposit    *big.Int
	Withdraw   *big.Int
	Allocate   *big.Int
	Deallocate *big.Int

	QuotesCount int64

	Fee *big.Int

	OpenInterest *big.Int
}

func addIfSet(dst, d *big.Int) {
	if d != nil {
		dst.Add(dst, d)
	}
}

// apply adds the delta to this bucket. Symbol rollup scopes track volume and
// open interest only; fee routing depends on whether the scope is user-owned.
func (b *Bucket) apply(d Delta, timestamp int64) {
	switch b.Key.Kind {
	case scope.KindSymbolDaily, scope.KindSymbolTotal:
		addIfSet(b.TradeVolume, d.TradeVolume)
		addIfSet(b.OpenInterest, d.OpenInterest)
	default:
		addIfSet(b.TradeVolume, d.TradeVolume)
		addIfSet(b.OpenTradeVolume, d.OpenTradeVolume)
		addIfSet(b.CloseTradeVolume, d.CloseTradeVolume)
		addIfSet(b.Deposit, d.Deposit)
		addIfSet(b.Withdraw, d.Withdraw)
		addIfSet(b.Allocate, d.Allocate)
		addIfSet(b.Deallocate, d.Deallocate)
		addIfSet(b.OpenInterest, d.OpenInterest)
		b.QuotesCount += d.QuotesCount

		if d.Fee != nil {
			if b.Key.User == "" {
				b.PlatformFee.Add(b.PlatformFee, d.Fee)
			} else {
				b.GeneratedFee.Add(b.GeneratedFee, d.Fee)
			}
		}
	}

	b.UpdateTimestamp = timestamp
}
