package repository

import (
	"context"
	"fmt"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/pkg/clickhouse"
	"VolScreen/pkg/logger"
)

// ClickHouseExporter archives fetched records into a table so past runs can
// be backtested against later realized volatility.
type ClickHouseExporter struct {
	client *clickhouse.Client
	table  string
	log    *logger.Logger
}

// NewClickHouseExporter creates the exporter and ensures the target table
// exists.
func NewClickHouseExporter(ctx context.Context, client *clickhouse.Client, table string, log *logger.Logger) (drepo.Exporter, error) {
	e := &ClickHouseExporter{client: client, table: table, log: log}
	if err := client.InitSchema(ctx, []string{e.schemaDDL()}); err != nil {
		return nil, fmt.Errorf("clickhouse exporter: %w", err)
	}
	return e, nil
}

func (e *ClickHouseExporter) schemaDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		symbol           String,
		iv               Nullable(Float64),
		iv_rank          Nullable(Float64),
		iv_percentile    Nullable(Float64),
		hv20             Nullable(Float64),
		hv30             Nullable(Float64),
		hv90             Nullable(Float64),
		hv252            Nullable(Float64),
		liquidity_rating Nullable(Int32),
		earnings_date    Nullable(Date),
		price            Nullable(Float64),
		returns          Array(Float64),
		sector           String,
		data_source      String,
		warnings         Array(String),
		fetched_at       DateTime
	) ENGINE = MergeTree()
	ORDER BY (symbol, fetched_at)`, e.table)
}

// Export inserts the batch inside one transaction, which clickhouse-go turns
// into a single batched insert.
func (e *ClickHouseExporter) Export(ctx context.Context, records []*models.MarketRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := e.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse export: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, iv, iv_rank, iv_percentile, hv20, hv30, hv90, hv252,
			liquidity_rating, earnings_date, price, returns, sector, data_source,
			warnings, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, e.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clickhouse export: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		returns := rec.Returns
		if returns == nil {
			returns = []float64{}
		}
		warnings := rec.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		_, err := stmt.ExecContext(ctx,
			rec.Symbol, rec.IV, rec.IVRank, rec.IVPercentile,
			rec.HV20, rec.HV30, rec.HV90, rec.HV252,
			rec.LiquidityRating, rec.EarningsDate, rec.Price, returns,
			rec.Sector, string(rec.DataSource), warnings, rec.FetchedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clickhouse export %s: %w", rec.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clickhouse export: commit: %w", err)
	}
	e.log.Debug("exported records to clickhouse",
		logger.String("table", e.table), logger.Int("count", len(records)))
	return nil
}

// Close releases the connection pool.
func (e *ClickHouseExporter) Close() error {
	return e.client.Close()
}
