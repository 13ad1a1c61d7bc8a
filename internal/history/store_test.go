package history_test

import (
	"math/big"
	"testing"

	"QuoteLedger/internal/history"
	"QuoteLedger/internal/scope"
)

func wei(n int64) *big.Int { return big.NewInt(n) }

func TestApplyFansOutEqualDeltas(t *testing.T) {
	store := history.NewStore()
	set := scope.Resolve(1000, "src", "0xuser", "3")

	touched := store.Apply(set, 1000, history.Delta{
		TradeVolume:      wei(500),
		OpenTradeVolume:  wei(500),
		CloseTradeVolume: wei(0),
		QuotesCount:      1,
	})

	if len(touched) != 7 {
		t.Fatalf("touched %d buckets, want 7", len(touched))
	}
	for _, b := range touched {
		if b.TradeVolume.Cmp(wei(500)) != 0 {
			t.Errorf("%s: trade volume %s, want 500", b.Key.StoreID(), b.TradeVolume)
		}
	}

	// Full buckets carry the open side and the count too.
	for _, key := range []scope.Key{set.GlobalDaily, set.GlobalTotal, set.UserDaily, *set.UserSymbolDaily, set.UserTotal} {
		b := store.Get(key)
		if b.OpenTradeVolume.Cmp(wei(500)) != 0 {
			t.Errorf("%s: open volume %s, want 500", key.StoreID(), b.OpenTradeVolume)
		}
		if b.QuotesCount != 1 {
			t.Errorf("%s: quotes count %d, want 1", key.StoreID(), b.QuotesCount)
		}
	}
}

func TestFeeRouting(t *testing.T) {
	store := history.NewStore()
	set := scope.Resolve(1000, "src", "0xuser", "3")

	store.Apply(set, 1000, history.Delta{Fee: wei(42)})

	for _, key := range []scope.Key{set.GlobalDaily, set.GlobalTotal} {
		b := store.Get(key)
		if b.PlatformFee.Cmp(wei(42)) != 0 {
			t.Errorf("%s: platform fee %s, want 42", key.StoreID(), b.PlatformFee)
		}
		if b.GeneratedFee.Sign() != 0 {
			t.Errorf("%s: generated fee leaked onto global scope", key.StoreID())
		}
	}

	for _, key := range []scope.Key{set.UserDaily, *set.UserSymbolDaily, set.UserTotal} {
		b := store.Get(key)
		if b.GeneratedFee.Cmp(wei(42)) != 0 {
			t.Errorf("%s: generated fee %s, want 42", key.StoreID(), b.GeneratedFee)
		}
		if b.PlatformFee.Sign() != 0 {
			t.Errorf("%s: platform fee leaked onto user scope", key.StoreID())
		}
	}
}

func TestSymbolRollupsOnlyTrackVolumeAndOpenInterest(t *testing.T) {
	store := history.NewStore()
	set := scope.Resolve(1000, "src", "0xuser", "3")

	store.Apply(set, 1000, history.Delta{
		TradeVolume:     wei(100),
		OpenTradeVolume: wei(100),
		QuotesCount:     1,
		Fee:             wei(7),
		OpenInterest:    wei(100),
	})

	for _, key := range []scope.Key{*set.SymbolDaily, *set.SymbolTotal} {
		b := store.Get(key)
		if b.TradeVolume.Cmp(wei(100)) != 0 {
			t.Errorf("%s: trade volume %s, want 100", key.StoreID(), b.TradeVolume)
		}
		if b.OpenInterest.Cmp(wei(100)) != 0 {
			t.Errorf("%s: open interest %s, want 100", key.StoreID(), b.OpenInterest)
		}
		if b.OpenTradeVolume.Sign() != 0 || b.QuotesCount != 0 || b.GeneratedFee.Sign() != 0 || b.PlatformFee.Sign() != 0 {
			t.Errorf("%s: rollup carries fields it must not", key.StoreID())
		}
	}
}

func TestOpenInterestSign(t *testing.T) {
	store := history.NewStore()
	set := scope.Resolve(1000, "src", "0xuser", "3")

	store.Apply(set, 1000, history.Delta{OpenInterest: wei(1000)})
	store.Apply(set, 2000, history.Delta{OpenInterest: wei(-400)})

	b := store.Get(set.GlobalTotal)
	if b.OpenInterest.Cmp(wei(600)) != 0 {
		t.Errorf("open interest %s, want 600", b.OpenInterest)
	}
	if b.UpdateTimestamp != 2000 {
		t.Errorf("update timestamp %d, want 2000", b.UpdateTimestamp)
	}
	if b.Timestamp != 1000 {
		t.Errorf("creation timestamp %d, want 1000", b.Timestamp)
	}
}

func TestGetOrCreateStartsZeroed(t *testing.T) {
	store := history.NewStore()
	key := scope.Resolve(0, "src", "0xuser", "").UserTotal

	b := store.GetOrCreate(key, 55)
	if b.TradeVolume.Sign() != 0 || b.Deposit.Sign() != 0 || b.QuotesCount != 0 {
		t.Error("fresh bucket must be zeroed")
	}
	if again := store.GetOrCreate(key, 99); again != b {
		t.Error("GetOrCreate must return the existing bucket")
	}
	if store.Len() != 1 {
		t.Errorf("store has %d buckets, want 1", store.Len())
	}
}

func TestAccountLevelEventsSkipSymbolScopes(t *testing.T) {
	store := history.NewStore()
	set := scope.Resolve(1000, "src", "0xuser", "")

	touched := store.Apply(set, 1000, history.Delta{Deposit: wei(500)})
	if len(touched) != 4 {
		t.Fatalf("touched %d buckets, want 4", len(touched))
	}
	for _, b := range touched {
		if b.Deposit.Cmp(wei(500)) != 0 {
			t.Errorf("%s: deposit %s, want 500", b.Key.StoreID(), b.Deposit)
		}
	}
}
