package history

import "QuoteLedger/internal/scope"

// Store is the in-memory bucket registry. It is owned by the single event
// processing goroutine and is not safe for concurrent use.
type Store struct {
	buckets map[string]*Bucket
}

func NewStore() *Store {
	return &Store{buckets: make(map[string]*Bucket)}
}

// GetOrCreate returns the bucket for key, creating a zeroed one stamped with
// timestamp if it does not exist yet.
func (s *Store) GetOrCreate(key scope.Key, timestamp int64) *Bucket {
	id := key.StoreID()
	if b, ok := s.buckets[id]; ok {
		return b
	}
	b := newBucket(key, timestamp)
	s.buckets[id] = b
	return b
}

// Get returns the bucket for key, or nil if it was never touched.
func (s *Store) Get(key scope.Key) *Bucket {
	return s.buckets[key.StoreID()]
}

// Len reports how many buckets exist.
func (s *Store) Len() int {
	return len(s.buckets)
}

// Apply fans one delta into every scope of the set and returns the touched
// buckets for persistence. The same delta values reach every applicable
// scope; per-scope filtering (symbol rollups, fee routing) happens inside
// Bucket.apply.
func (s *Store) Apply(set scope.Set, timestamp int64, d Delta) []*Bucket {
	touched := make([]*Bucket, 0, 7)

	for _, key := range []scope.Key{set.GlobalDaily, set.GlobalTotal, set.UserDaily, set.UserTotal} {
		b := s.GetOrCreate(key, timestamp)
		b.apply(d, timestamp)
		touched = append(touched, b)
	}

	for _, key := range []*scope.Key{set.UserSymbolDaily, set.SymbolDaily, set.SymbolTotal} {
		if key == nil {
			continue
		}
		b := s.GetOrCreate(*key, timestamp)
		b.apply(d, timestamp)
		touched = append(touched, b)
	}

	return touched
}
