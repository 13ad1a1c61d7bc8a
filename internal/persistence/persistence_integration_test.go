package persistence_test

import (
	"context"
	"testing"

	"QuoteLedger/internal/persistence"
	"QuoteLedger/internal/testutil"

	"github.com/rs/zerolog"
)

// Round-trips rows through a live Postgres. Skipped unless INTEGRATION_TEST=1
// and the test database is reachable.
func TestWriterRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewWriter(db)

	bucket := persistence.BucketRow{
		ScopeKind:        "global_total",
		BucketID:         "total_symmio_v3",
		Day:              -1,
		AccountSource:    "symmio_v3",
		TradeVolume:      "1000000000000000000000",
		OpenTradeVolume:  "1000000000000000000000",
		CloseTradeVolume: "0",
		Deposit:          "0",
		Withdraw:         "0",
		Allocate:         "0",
		Deallocate:       "0",
		QuotesCount:      1,
		GeneratedFee:     "0",
		PlatformFee:      "1000000000000000000",
		OpenInterest:     "1000000000000000000000",
		Timestamp:        1_700_000_000,
		UpdateTimestamp:  1_700_000_000,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.UpsertBuckets(ctx, tx, []persistence.BucketRow{bucket}); err != nil {
		t.Fatalf("upsert buckets: %v", err)
	}
	if err := writer.WriteProcessedEvents(ctx, tx, []persistence.ProcessedEventRow{
		{EventKind: "OpenPosition", Ref: "0xabc-1", BlockNumber: 100, LogIndex: 1, Timestamp: 1_700_000_000},
	}); err != nil {
		t.Fatalf("write processed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Upsert again with updated counters, must overwrite not duplicate.
	bucket.TradeVolume = "2000000000000000000000"
	bucket.UpdateTimestamp = 1_700_000_100

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.UpsertBuckets(ctx, tx, []persistence.BucketRow{bucket}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var volume string
	var count int
	err = db.QueryRowContext(ctx, `
		SELECT trade_volume, (SELECT COUNT(*) FROM aggregation.buckets)
		FROM aggregation.buckets
		WHERE scope_kind = 'global_total' AND bucket_id = 'total_symmio_v3'
	`).Scan(&volume, &count)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if volume != "2000000000000000000000" {
		t.Errorf("trade_volume: got %s, want 2000000000000000000000", volume)
	}
	if count != 1 {
		t.Errorf("bucket rows: got %d, want 1", count)
	}

	checker := persistence.NewPostgresProcessedChecker(db)
	processed, err := checker.IsProcessed("OpenPosition", "0xabc-1")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if !processed {
		t.Error("expected event to be recorded as processed")
	}

	block, logIndex, ok, err := checker.HighWaterMark(ctx)
	if err != nil {
		t.Fatalf("high-water mark: %v", err)
	}
	if !ok || block != 100 || logIndex != 1 {
		t.Errorf("high-water mark: got (%d, %d, %v), want (100, 1, true)", block, logIndex, ok)
	}
}
