// Package scope computes the aggregation bucket keys an event must update.
// Resolution is pure: the same (timestamp, accountSource, user, symbol)
// always yields the same keys, and keys from different account sources never
// collide.
package scope

import "fmt"

// SecondsPerDay is the bucket granularity for all daily scopes.
const SecondsPerDay = 86400

// Kind identifies a bucket scope.
type Kind int32

const (
	KindGlobalDaily Kind = iota
	KindGlobalTotal
	KindUserDaily
	KindUserSymbolDaily
	KindUserTotal
	KindSymbolDaily
	KindSymbolTotal
)

func (k Kind) String() string {
	switch k {
	case KindGlobalDaily:
		return "global_daily"
	case KindGlobalTotal:
		return "global_total"
	case KindUserDaily:
		return "user_daily"
	case KindUserSymbolDaily:
		return "user_symbol_daily"
	case KindUserTotal:
		return "user_total"
	case KindSymbolDaily:
		return "symbol_daily"
	case KindSymbolTotal:
		return "symbol_total"
	default:
		return "unknown"
	}
}

// Key addresses one aggregation bucket.
type Key struct {
	Kind          Kind
	ID            string // Stable composite identifier
	Day           int64  // Day index; -1 for all-time scopes
	AccountSource string
	User          string // Empty for global/symbol scopes
	Symbol        string // Empty for non-symbol scopes
}

// Set is the full fan-out for one event. UserSymbolDaily, SymbolDaily and
// SymbolTotal are nil when the event has no symbol context (deposits,
// withdrawals, allocations).
type Set struct {
	GlobalDaily     Key
	GlobalTotal     Key
	UserDaily       Key
	UserSymbolDaily *Key
	UserTotal       Key
	SymbolDaily     *Key
	SymbolTotal     *Key
}

// DayIndex returns the deterministic day bucket for a timestamp.
func DayIndex(timestamp int64) int64 {
	return timestamp / SecondsPerDay
}

// Resolve computes the bucket keys for an event. symbol is empty for
// account-level events.
func Resolve(timestamp int64, accountSource, user, symbol string) Set {
	day := DayIndex(timestamp)

	set := Set{
		GlobalDaily: Key{
			Kind:          KindGlobalDaily,
			ID:            fmt.Sprintf("%d_%s", day, accountSource),
			Day:           day,
			AccountSource: accountSource,
		},
		GlobalTotal: Key{
			Kind:          KindGlobalTotal,
			ID:            "total_" + accountSource,
			Day:           -1,
			AccountSource: accountSource,
		},
		UserDaily: Key{
			Kind:          KindUserDaily,
			ID:            fmt.Sprintf("%s_%d_%s", user, day, accountSource),
			Day:           day,
			AccountSource: accountSource,
			User:          user,
		},
		UserTotal: Key{
			Kind:          KindUserTotal,
			ID:            fmt.Sprintf("%s_total_%s", user, accountSource),
			Day:           -1,
			AccountSource: accountSource,
			User:          user,
		},
	}

	if symbol != "" {
		set.UserSymbolDaily = &Key{
			Kind:          KindUserSymbolDaily,
			ID:            fmt.Sprintf("%s_%s_%d_%s", user, symbol, day, accountSource),
			Day:           day,
			AccountSource: accountSource,
			User:          user,
			Symbol:        symbol,
		}
		set.SymbolDaily = &Key{
			Kind:          KindSymbolDaily,
			ID:            fmt.Sprintf("%s_%d_%s", symbol, day, accountSource),
			Day:           day,
			AccountSource: accountSource,
			Symbol:        symbol,
		}
		set.SymbolTotal = &Key{
			Kind:          KindSymbolTotal,
			ID:            fmt.Sprintf("%s_total_%s", symbol, accountSource),
			Day:           -1,
			AccountSource: accountSource,
			Symbol:        symbol,
		}
	}

	return set
}

// StoreID returns the globally unique identifier for a key, prefixing the
// composite ID with the scope kind so different kinds never collide.
func (k Key) StoreID() string {
	return k.Kind.String() + ":" + k.ID
}
