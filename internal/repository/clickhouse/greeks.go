// Package clickhouse persists time-series analytics rows.
package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/common"

	"hermes/internal/metrics"
	"hermes/internal/services/greeks"
	chbatch "hermes/pkg/clickhouse"
	"hermes/pkg/errors"
)

// Compile-time check
var _ greeks.HistoryRepository = (*GreeksRepository)(nil)

// GreeksRepository stores risk snapshots in ClickHouse. Single
// snapshots are buffered and written in batches; ClickHouse punishes
// row-at-a-time inserts.
type GreeksRepository struct {
	conn   driver.Conn
	writer *chbatch.BatchWriter[*greeks.Snapshot]
}

// NewGreeksRepository creates a new greeks repository. Start must be
// called for buffered inserts to flush on schedule.
func NewGreeksRepository(conn driver.Conn) *GreeksRepository {
	r := &GreeksRepository{conn: conn}
	r.writer = chbatch.NewBatchWriter(chbatch.BatchWriterConfig{
		Table:    "option_greeks",
		MaxBatch: 200,
		Interval: 10 * time.Second,
	}, r.InsertBatch)
	return r
}

// Start launches the background flusher.
func (r *GreeksRepository) Start() {
	r.writer.Start()
}

// Stop drains buffered snapshots and halts the flusher.
func (r *GreeksRepository) Stop() {
	r.writer.Stop()
}

// GreeksRow is one stored snapshot
type GreeksRow struct {
	Option     string    `ch:"option"`
	Symbol     string    `ch:"symbol"`
	Spot       float64   `ch:"spot"`
	Strike     float64   `ch:"strike"`
	Premium    float64   `ch:"premium"`
	Expiry     time.Time `ch:"expiry"`
	IsCall     bool      `ch:"is_call"`
	Price      float64   `ch:"price"`
	Delta      float64   `ch:"delta"`
	Gamma      float64   `ch:"gamma"`
	Theta      float64   `ch:"theta"`
	Vega       float64   `ch:"vega"`
	Rho        float64   `ch:"rho"`
	IV         float64   `ch:"implied_volatility"`
	ComputedAt time.Time `ch:"computed_at"`
}

// Insert buffers a single snapshot for the next batch flush
func (r *GreeksRepository) Insert(ctx context.Context, snap *greeks.Snapshot) error {
	r.writer.Add(snap)
	return nil
}

// InsertBatch stores snapshots in one batch
func (r *GreeksRepository) InsertBatch(ctx context.Context, snaps []*greeks.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO option_greeks (
			option, symbol, spot, strike, premium, expiry, is_call,
			price, delta, gamma, theta, vega, rho, implied_volatility, computed_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, snap := range snaps {
		err := batch.Append(
			snap.Option.Hex(), snap.Symbol,
			snap.Spot.InexactFloat64(), snap.Strike.InexactFloat64(), snap.Premium.InexactFloat64(),
			snap.Expiry, snap.IsCall,
			snap.Greeks.Price, snap.Greeks.Delta, snap.Greeks.Gamma,
			snap.Greeks.Theta, snap.Greeks.Vega, snap.Greeks.Rho,
			snap.Greeks.ImpliedVolatility, snap.ComputedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append snapshot")
		}
	}

	err = batch.Send()
	metrics.RecordDBQuery("clickhouse", "insert_greeks", err)
	return err
}

// Recent retrieves the latest snapshots for one option, newest first
func (r *GreeksRepository) Recent(ctx context.Context, option common.Address, limit int) ([]GreeksRow, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []GreeksRow
	sql := `
		SELECT option, symbol, spot, strike, premium, expiry, is_call,
		       price, delta, gamma, theta, vega, rho, implied_volatility, computed_at
		FROM option_greeks
		WHERE option = $1
		ORDER BY computed_at DESC
		LIMIT $2`

	if err := r.conn.Select(ctx, &rows, sql, option.Hex(), limit); err != nil {
		return nil, errors.Wrapf(err, "failed to query greeks for %s", option.Hex())
	}
	return rows, nil
}
