package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresProcessedChecker is the cold dedup tier: it answers whether an
// event reference was already written to the processed-event log.
type PostgresProcessedChecker struct {
	db *sql.DB
}

func NewPostgresProcessedChecker(db *sql.DB) *PostgresProcessedChecker {
	return &PostgresProcessedChecker{db: db}
}

// IsProcessed checks the processed-event log for the reference.
func (c *PostgresProcessedChecker) IsProcessed(eventKind string, ref string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM aggregation.processed_events
        WHERE event_kind = $1 AND ref = $2
        LIMIT 1
    `

	var exists int
	err := c.db.QueryRowContext(ctx, query, eventKind, ref).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentKeys returns the newest composite dedup keys for LRU warmup.
func (c *PostgresProcessedChecker) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT event_kind || ':' || ref
        FROM aggregation.processed_events
        ORDER BY block_number DESC, log_index DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0, limit)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// HighWaterMark returns the chain coordinates of the newest processed
// event, for seeding the block-order validator after a restart.
func (c *PostgresProcessedChecker) HighWaterMark(ctx context.Context) (blockNumber uint64, logIndex uint32, ok bool, err error) {
	var block, index int64
	err = c.db.QueryRowContext(ctx, `
        SELECT block_number, log_index
        FROM aggregation.processed_events
        ORDER BY block_number DESC, log_index DESC
        LIMIT 1
    `).Scan(&block, &index)

	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return uint64(block), uint32(index), true, nil
}
