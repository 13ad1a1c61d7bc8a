package scope_test

import (
	"QuoteLedger/internal/scope"
	"testing"
)

func TestDayIndex(t *testing.T) {
	if got := scope.DayIndex(0); got != 0 {
		t.Errorf("day(0) = %d", got)
	}
	if got := scope.DayIndex(86399); got != 0 {
		t.Errorf("day(86399) = %d", got)
	}
	if got := scope.DayIndex(86400); got != 1 {
		t.Errorf("day(86400) = %d", got)
	}
}

func TestResolveWithoutSymbol(t *testing.T) {
	set := scope.Resolve(2*86400+100, "src", "0xabc", "")

	if set.GlobalDaily.ID != "2_src" {
		t.Errorf("global daily: %q", set.GlobalDaily.ID)
	}
	if set.GlobalTotal.ID != "total_src" {
		t.Errorf("global total: %q", set.GlobalTotal.ID)
	}
	if set.UserDaily.ID != "0xabc_2_src" {
		t.Errorf("user daily: %q", set.UserDaily.ID)
	}
	if set.UserTotal.ID != "0xabc_total_src" {
		t.Errorf("user total: %q", set.UserTotal.ID)
	}
	if set.UserSymbolDaily != nil || set.SymbolDaily != nil || set.SymbolTotal != nil {
		t.Error("symbol scopes should be absent for account-level events")
	}
}

func TestResolveWithSymbol(t *testing.T) {
	set := scope.Resolve(100, "src", "0xabc", "7")

	if set.UserSymbolDaily == nil || set.UserSymbolDaily.ID != "0xabc_7_0_src" {
		t.Fatalf("user symbol daily: %+v", set.UserSymbolDaily)
	}
	if set.SymbolDaily == nil || set.SymbolDaily.ID != "7_0_src" {
		t.Fatalf("symbol daily: %+v", set.SymbolDaily)
	}
	if set.SymbolTotal == nil || set.SymbolTotal.ID != "7_total_src" {
		t.Fatalf("symbol total: %+v", set.SymbolTotal)
	}
}

func TestResolveSourcesNeverCollide(t *testing.T) {
	a := scope.Resolve(100, "srcA", "u", "1")
	b := scope.Resolve(100, "srcB", "u", "1")

	if a.GlobalDaily.StoreID() == b.GlobalDaily.StoreID() {
		t.Error("global daily keys collide across sources")
	}
	if a.SymbolTotal.StoreID() == b.SymbolTotal.StoreID() {
		t.Error("symbol total keys collide across sources")
	}
}

func TestStoreIDIncludesKind(t *testing.T) {
	set := scope.Resolve(100, "src", "u", "")
	if set.GlobalDaily.StoreID() == set.UserDaily.StoreID() {
		t.Error("kinds must namespace store IDs")
	}
}

func TestResolveDeterministic(t *testing.T) {
	a := scope.Resolve(12345, "src", "u", "3")
	b := scope.Resolve(12345, "src", "u", "3")
	if a.UserSymbolDaily.ID != b.UserSymbolDaily.ID || a.GlobalDaily.ID != b.GlobalDaily.ID {
		t.Error("resolver must be deterministic")
	}
}
