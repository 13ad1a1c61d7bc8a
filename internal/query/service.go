// Package query serves read-only access to the aggregation tables. Queries
// hit Postgres, not the in-memory state, so results trail the processor by
// at most one persistence flush.
package query

import (
	"context"
	"database/sql"
	"fmt"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const bucketColumns = `scope_kind, bucket_id, day, account_source, user_address, symbol,
	trade_volume, open_trade_volume, close_trade_volume,
	deposit, withdraw, allocate, deallocate, quotes_count,
	generated_fee, platform_fee, open_interest, timestamp, update_timestamp`

func scanBucket(row interface{ Scan(...interface{}) error }) (*BucketResponse, error) {
	var b BucketResponse
	var tradeVolume, openVolume, closeVolume string
	var deposit, withdraw, allocate, deallocate string
	var generatedFee, platformFee, openInterest string

	if err := row.Scan(
		&b.ScopeKind, &b.BucketID, &b.Day, &b.AccountSource, &b.User, &b.Symbol,
		&tradeVolume, &openVolume, &closeVolume,
		&deposit, &withdraw, &allocate, &deallocate, &b.QuotesCount,
		&generatedFee, &platformFee, &openInterest, &b.Timestamp, &b.UpdateTimestamp,
	); err != nil {
		return nil, err
	}

	b.TradeVolume = tokenUnits(tradeVolume)
	b.OpenTradeVolume = tokenUnits(openVolume)
	b.CloseTradeVolume = tokenUnits(closeVolume)
	b.Deposit = tokenUnits(deposit)
	b.Withdraw = tokenUnits(withdraw)
	b.Allocate = tokenUnits(allocate)
	b.Deallocate = tokenUnits(deallocate)
	b.GeneratedFee = tokenUnits(generatedFee)
	b.PlatformFee = tokenUnits(platformFee)
	b.OpenInterest = tokenUnits(openInterest)
	return &b, nil
}

// GetBucket returns one bucket by its scope kind and composite identifier.
// Returns nil when the bucket does not exist.
func (s *Service) GetBucket(ctx context.Context, scopeKind, bucketID string) (*BucketResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bucketColumns+`
		FROM aggregation.buckets
		WHERE scope_kind = $1 AND bucket_id = $2
	`, scopeKind, bucketID)

	b, err := scanBucket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket %s/%s: %w", scopeKind, bucketID, err)
	}
	return b, nil
}

// GlobalDailyRange returns the platform-wide daily buckets for a source over
// an inclusive day range, oldest first.
func (s *Service) GlobalDailyRange(ctx context.Context, accountSource string, fromDay, toDay int64) ([]BucketResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bucketColumns+`
		FROM aggregation.buckets
		WHERE scope_kind = 'global_daily' AND account_source = $1
		  AND day BETWEEN $2 AND $3
		ORDER BY day ASC
	`, accountSource, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("global daily range: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// GlobalTotal returns the all-time platform bucket for a source, nil when no
// activity has been recorded yet.
func (s *Service) GlobalTotal(ctx context.Context, accountSource string) (*BucketResponse, error) {
	return s.GetBucket(ctx, "global_total", "total_"+accountSource)
}

// UserDaily returns a user's daily buckets, newest first. beforeDay paginates
// backwards; pass nil for the first page.
func (s *Service) UserDaily(ctx context.Context, accountSource, user string, limit int, beforeDay *int64) ([]BucketResponse, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM aggregation.buckets
		WHERE scope_kind = 'user_daily' AND account_source = $1 AND user_address = $2
	`
	args := []interface{}{accountSource, user}
	argIdx := 3

	if beforeDay != nil {
		query += fmt.Sprintf(" AND day < $%d", argIdx)
		args = append(args, *beforeDay)
		argIdx++
	}

	query += " ORDER BY day DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user daily: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// UserTotal returns a user's all-time bucket, nil when the user is unknown.
func (s *Service) UserTotal(ctx context.Context, accountSource, user string) (*BucketResponse, error) {
	return s.GetBucket(ctx, "user_total", fmt.Sprintf("%s_total_%s", user, accountSource))
}

// UserSymbolDaily returns a user's per-symbol daily buckets, newest first.
func (s *Service) UserSymbolDaily(ctx context.Context, accountSource, user, symbol string, limit int) ([]BucketResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bucketColumns+`
		FROM aggregation.buckets
		WHERE scope_kind = 'user_symbol_daily' AND account_source = $1
		  AND user_address = $2 AND symbol = $3
		ORDER BY day DESC
		LIMIT $4
	`, accountSource, user, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("user symbol daily: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// SymbolDaily returns a symbol's market-wide daily volume buckets, newest
// first.
func (s *Service) SymbolDaily(ctx context.Context, accountSource, symbol string, limit int) ([]BucketResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bucketColumns+`
		FROM aggregation.buckets
		WHERE scope_kind = 'symbol_daily' AND account_source = $1 AND symbol = $2
		ORDER BY day DESC
		LIMIT $3
	`, accountSource, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("symbol daily: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// SymbolTotal returns a symbol's all-time rollup, nil when the symbol has no
// recorded volume.
func (s *Service) SymbolTotal(ctx context.Context, accountSource, symbol string) (*BucketResponse, error) {
	return s.GetBucket(ctx, "symbol_total", fmt.Sprintf("%s_total_%s", symbol, accountSource))
}

// ListAudits returns audit records of one kind, newest block first.
// beforeBlock paginates backwards; pass nil for the first page.
func (s *Service) ListAudits(ctx context.Context, kind string, limit int, beforeBlock *int64) ([]AuditResponse, error) {
	query := `
		SELECT kind, id, payload, block_number, timestamp
		FROM aggregation.audits
		WHERE kind = $1
	`
	args := []interface{}{kind}
	argIdx := 2

	if beforeBlock != nil {
		query += fmt.Sprintf(" AND block_number < $%d", argIdx)
		args = append(args, *beforeBlock)
		argIdx++
	}

	query += " ORDER BY block_number DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var audits []AuditResponse
	for rows.Next() {
		var a AuditResponse
		if err := rows.Scan(&a.Kind, &a.ID, &a.Payload, &a.BlockNumber, &a.Timestamp); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// GetAudit returns one audit record by kind and identifier, nil when absent.
func (s *Service) GetAudit(ctx context.Context, kind, id string) (*AuditResponse, error) {
	var a AuditResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, id, payload, block_number, timestamp
		FROM aggregation.audits
		WHERE kind = $1 AND id = $2
	`, kind, id).Scan(&a.Kind, &a.ID, &a.Payload, &a.BlockNumber, &a.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit %s/%s: %w", kind, id, err)
	}
	return &a, nil
}

// LastProcessedBlock returns the highest block recorded in the processed
// event log, 0 when the ledger is empty. Exposed for freshness checks.
func (s *Service) LastProcessedBlock(ctx context.Context) (int64, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(block_number), 0) FROM aggregation.processed_events
	`).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("last processed block: %w", err)
	}
	return block, nil
}

func collectBuckets(rows *sql.Rows) ([]BucketResponse, error) {
	var buckets []BucketResponse
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, *b)
	}
	return buckets, rows.Err()
}
