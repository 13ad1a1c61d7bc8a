package core

import (
	"container/list"
	"fmt"
)

// ProcessedGuard implements two-tier exactly-once protection: a hot
// in-memory LRU of recently processed event references backed by a Postgres
// lookup for references that aged out of the cache.
type ProcessedGuard struct {
	lru       *processedLRU
	dbChecker DBProcessedChecker
}

// DBProcessedChecker is the cold-tier lookup against the processed_events
// table.
type DBProcessedChecker interface {
	IsProcessed(eventKind string, ref string) (bool, error)
}

func NewProcessedGuard(capacity int, dbChecker DBProcessedChecker) *ProcessedGuard {
	return &ProcessedGuard{
		lru:       newProcessedLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether the event reference was already processed.
// A failing cold-tier lookup is treated as not-duplicate so a database
// hiccup cannot stall processing; the persistence layer's unique key on
// (kind, ref) catches the rare false negative.
func (g *ProcessedGuard) IsDuplicate(eventKind, ref string) bool {
	compositeKey := fmt.Sprintf("%s:%s", eventKind, ref)

	if g.lru.Contains(compositeKey) {
		return true
	}

	if g.dbChecker != nil {
		isDup, err := g.dbChecker.IsProcessed(eventKind, ref)
		if err != nil {
			return false
		}
		if isDup {
			g.lru.Add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed records the reference after successful processing.
func (g *ProcessedGuard) MarkProcessed(eventKind, ref string) {
	g.lru.Add(fmt.Sprintf("%s:%s", eventKind, ref))
}

// Warm loads composite keys recovered from Postgres into the LRU so recent
// references stay on the hot path after a restart.
func (g *ProcessedGuard) Warm(keys []string) {
	g.lru.Warm(keys)
}

// Size returns the current LRU occupancy.
func (g *ProcessedGuard) Size() int {
	return g.lru.Size()
}

// processedLRU is an LRU cache of composite dedup keys.
// Not thread-safe; only accessed from the single processing goroutine.
type processedLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newProcessedLRU(capacity int) *processedLRU {
	return &processedLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *processedLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists)
func (lru *processedLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *processedLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
	}
}

func (lru *processedLRU) Warm(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		entry := &lruEntry{key: key}
		elem := lru.lruList.PushFront(entry)
		lru.cache[key] = elem

		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

func (lru *processedLRU) Size() int {
	return lru.lruList.Len()
}
