package ledger

import "math/big"

// Symbol is a tradeable market. TradingFee is a 10^18-scaled fraction of
// open notional charged on position open.
type Symbol struct {
	ID              uint64
	Name            string
	TradingFee      *big.Int
	Timestamp       int64
	UpdateTimestamp int64
}

// SymbolStore tracks registered symbols. Events referencing an unregistered
// symbol skip their fee and volume side effects rather than failing, so the
// store distinguishes missing from zero-fee.
type SymbolStore struct {
	symbols map[uint64]*Symbol
}

func NewSymbolStore() *SymbolStore {
	return &SymbolStore{symbols: make(map[uint64]*Symbol)}
}

// Get returns the symbol or nil.
func (s *SymbolStore) Get(id uint64) *Symbol {
	return s.symbols[id]
}

// Add registers a symbol, overwriting any earlier registration.
func (s *SymbolStore) Add(id uint64, name string, tradingFee *big.Int, timestamp int64) *Symbol {
	sym := &Symbol{
		ID:              id,
		Name:            name,
		TradingFee:      new(big.Int).Set(tradingFee),
		Timestamp:       timestamp,
		UpdateTimestamp: timestamp,
	}
	s.symbols[id] = sym
	return sym
}

// SetFee updates a symbol's trading fee. Unknown symbols are ignored and
// reported false.
func (s *SymbolStore) SetFee(id uint64, tradingFee *big.Int, timestamp int64) bool {
	sym := s.symbols[id]
	if sym == nil {
		return false
	}
	sym.TradingFee = new(big.Int).Set(tradingFee)
	sym.UpdateTimestamp = timestamp
	return true
}

// Len reports how many symbols are registered.
func (s *SymbolStore) Len() int {
	return len(s.symbols)
}
