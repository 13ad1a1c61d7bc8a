// Package persistence writes the processor's outputs to Postgres: bucket
// upserts, JSON audit rows, and the processed-event log that backs the cold
// dedup tier.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"QuoteLedger/internal/history"
	"QuoteLedger/internal/ledger"
)

// BucketRow is one aggregation bucket row. Monetary columns carry the
// 10^18-scaled integers as decimal strings into NUMERIC(78,0).
type BucketRow struct {
	ScopeKind        string
	BucketID         string
	Day              int64
	AccountSource    string
	UserAddress      string
	Symbol           string
	TradeVolume      string
	OpenTradeVolume  string
	CloseTradeVolume string
	Deposit          string
	Withdraw         string
	Allocate         string
	Deallocate       string
	QuotesCount      int64
	GeneratedFee     string
	PlatformFee      string
	OpenInterest     string
	Timestamp        int64
	UpdateTimestamp  int64
}

// AuditRow is one append-only audit record, JSON-encoded.
type AuditRow struct {
	Kind        string
	ID          string
	Payload     []byte
	BlockNumber int64
	Timestamp   int64
}

// ProcessedEventRow records one applied event for exactly-once recovery.
type ProcessedEventRow struct {
	EventKind   string
	Ref         string
	BlockNumber int64
	LogIndex    int64
	Timestamp   int64
}

// BucketRowFromState flattens an in-memory bucket into its row form.
func BucketRowFromState(b *history.Bucket) BucketRow {
	return BucketRow{
		ScopeKind:        b.Key.Kind.String(),
		BucketID:         b.Key.ID,
		Day:              b.Key.Day,
		AccountSource:    b.Key.AccountSource,
		UserAddress:      b.Key.User,
		Symbol:           b.Key.Symbol,
		TradeVolume:      b.TradeVolume.String(),
		OpenTradeVolume:  b.OpenTradeVolume.String(),
		CloseTradeVolume: b.CloseTradeVolume.String(),
		Deposit:          b.Deposit.String(),
		Withdraw:         b.Withdraw.String(),
		Allocate:         b.Allocate.String(),
		Deallocate:       b.Deallocate.String(),
		QuotesCount:      b.QuotesCount,
		GeneratedFee:     b.GeneratedFee.String(),
		PlatformFee:      b.PlatformFee.String(),
		OpenInterest:     b.OpenInterest.String(),
		Timestamp:        b.Timestamp,
		UpdateTimestamp:  b.UpdateTimestamp,
	}
}

// AuditRowFromRecord JSON-encodes an audit record into its row form.
func AuditRowFromRecord(r ledger.AuditRecord, blockNumber uint64, timestamp int64) (AuditRow, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return AuditRow{}, fmt.Errorf("marshal audit %s/%s: %w", r.AuditKind(), r.AuditID(), err)
	}
	return AuditRow{
		Kind:        r.AuditKind(),
		ID:          r.AuditID(),
		Payload:     payload,
		BlockNumber: int64(blockNumber),
		Timestamp:   timestamp,
	}, nil
}

// Writer batch-writes rows using multi-row INSERT. Buckets are absolute
// states so a replayed batch converges to the same values; audit and
// processed rows are keyed so replays collapse into upserts.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// DB exposes the handle for transaction control.
func (w *Writer) DB() *sql.DB {
	return w.db
}

// UpsertBuckets writes bucket rows, overwriting existing counters with the
// in-memory state.
func (w *Writer) UpsertBuckets(ctx context.Context, tx *sql.Tx, rows []BucketRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO aggregation.buckets
		(scope_kind, bucket_id, day, account_source, user_address, symbol,
		 trade_volume, open_trade_volume, close_trade_volume,
		 deposit, withdraw, allocate, deallocate, quotes_count,
		 generated_fee, platform_fee, open_interest, timestamp, update_timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*19)

	for i, r := range rows {
		base := i * 19
		placeholders := make([]string, 19)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.ScopeKind, r.BucketID, r.Day, r.AccountSource, r.UserAddress, r.Symbol,
			r.TradeVolume, r.OpenTradeVolume, r.CloseTradeVolume,
			r.Deposit, r.Withdraw, r.Allocate, r.Deallocate, r.QuotesCount,
			r.GeneratedFee, r.PlatformFee, r.OpenInterest, r.Timestamp, r.UpdateTimestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (scope_kind, bucket_id) DO UPDATE SET
		trade_volume = EXCLUDED.trade_volume,
		open_trade_volume = EXCLUDED.open_trade_volume,
		close_trade_volume = EXCLUDED.close_trade_volume,
		deposit = EXCLUDED.deposit,
		withdraw = EXCLUDED.withdraw,
		allocate = EXCLUDED.allocate,
		deallocate = EXCLUDED.deallocate,
		quotes_count = EXCLUDED.quotes_count,
		generated_fee = EXCLUDED.generated_fee,
		platform_fee = EXCLUDED.platform_fee,
		open_interest = EXCLUDED.open_interest,
		update_timestamp = EXCLUDED.update_timestamp`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteAudits writes audit rows. Latest-state kinds (granted_role) are
// updated in place; append-only kinds never collide on key.
func (w *Writer) WriteAudits(ctx context.Context, tx *sql.Tx, rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO aggregation.audits
		(kind, id, payload, block_number, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.Kind, r.ID, r.Payload, r.BlockNumber, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (kind, id) DO UPDATE SET
		payload = EXCLUDED.payload,
		block_number = EXCLUDED.block_number,
		timestamp = EXCLUDED.timestamp`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteProcessedEvents records applied event references.
func (w *Writer) WriteProcessedEvents(ctx context.Context, tx *sql.Tx, rows []ProcessedEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO aggregation.processed_events
		(event_kind, ref, block_number, log_index, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.EventKind, r.Ref, r.BlockNumber, r.LogIndex, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (event_kind, ref) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
