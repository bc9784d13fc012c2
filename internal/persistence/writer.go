// Package persistence streams committed versions and account checkpoints
// into Postgres. Writes are asynchronous and batched; the engine never blocks
// on the database, and a full buffer drops the oldest history rather than
// stalling settlement.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"PerpSettle/internal/fixed"
)

// VersionRow is one committed oracle version with its accumulator values.
type VersionRow struct {
	Market    string
	Timestamp int64
	Price     fixed.Dec
	Valid     bool

	MakerValue fixed.Dec
	LongValue  fixed.Dec
	ShortValue fixed.Dec

	ProtocolFee fixed.Dec
	OracleFee   fixed.Dec
	RiskFee     fixed.Dec
	Exposure    fixed.Dec
	Orders      int64
}

// CheckpointRow is one account settlement step.
type CheckpointRow struct {
	Market    string
	Account   string
	Timestamp int64

	Collateral    fixed.Dec
	Transfer      fixed.Dec
	TradeFee      fixed.Dec
	SettlementFee fixed.Dec
}

// Writer batches rows into Postgres on a flush interval.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger

	versions    chan VersionRow
	checkpoints chan CheckpointRow

	batchSize     int
	flushInterval time.Duration
}

// Config tunes the writer's buffering.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 8192
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

func NewWriter(db *sql.DB, cfg Config, log zerolog.Logger) *Writer {
	cfg.withDefaults()
	return &Writer{
		db:            db,
		log:           log.With().Str("component", "persistence").Logger(),
		versions:      make(chan VersionRow, cfg.BufferSize),
		checkpoints:   make(chan CheckpointRow, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
}

// RecordVersion enqueues a version row, dropping it if the buffer is full.
func (w *Writer) RecordVersion(row VersionRow) {
	select {
	case w.versions <- row:
	default:
		w.log.Warn().Str("market", row.Market).Int64("timestamp", row.Timestamp).
			Msg("version buffer full, dropping row")
	}
}

// RecordCheckpoint enqueues a checkpoint row, dropping it if the buffer is full.
func (w *Writer) RecordCheckpoint(row CheckpointRow) {
	select {
	case w.checkpoints <- row:
	default:
		w.log.Warn().Str("account", row.Account).Int64("timestamp", row.Timestamp).
			Msg("checkpoint buffer full, dropping row")
	}
}

// Run flushes batches until ctx is cancelled, then drains what is buffered.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	if rows := drain(w.versions, w.batchSize); len(rows) > 0 {
		if err := w.insertVersions(ctx, rows); err != nil {
			w.log.Error().Err(err).Int("rows", len(rows)).Msg("version batch insert failed")
		}
	}
	if rows := drain(w.checkpoints, w.batchSize); len(rows) > 0 {
		if err := w.insertCheckpoints(ctx, rows); err != nil {
			w.log.Error().Err(err).Int("rows", len(rows)).Msg("checkpoint batch insert failed")
		}
	}
}

func drain[T any](ch chan T, limit int) []T {
	var out []T
	for len(out) < limit {
		select {
		case row := <-ch:
			out = append(out, row)
		default:
			return out
		}
	}
	return out
}

func (w *Writer) insertVersions(ctx context.Context, rows []VersionRow) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO versions
		(market, ts, price, valid, maker_value, long_value, short_value,
		 protocol_fee, oracle_fee, risk_fee, exposure, orders) VALUES `)
	args := make([]any, 0, len(rows)*12)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 12
		sb.WriteString(placeholders(base, 12))
		args = append(args, r.Market, r.Timestamp, int64(r.Price), r.Valid,
			int64(r.MakerValue), int64(r.LongValue), int64(r.ShortValue),
			int64(r.ProtocolFee), int64(r.OracleFee), int64(r.RiskFee),
			int64(r.Exposure), r.Orders)
	}
	sb.WriteString(" ON CONFLICT (market, ts) DO NOTHING")
	_, err := w.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (w *Writer) insertCheckpoints(ctx context.Context, rows []CheckpointRow) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO checkpoints
		(market, account, ts, collateral, transfer, trade_fee, settlement_fee) VALUES `)
	args := make([]any, 0, len(rows)*7)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 7
		sb.WriteString(placeholders(base, 7))
		args = append(args, r.Market, r.Account, r.Timestamp,
			int64(r.Collateral), int64(r.Transfer), int64(r.TradeFee), int64(r.SettlementFee))
	}
	sb.WriteString(" ON CONFLICT (market, account, ts) DO NOTHING")
	_, err := w.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func placeholders(base, n int) string {
	var sb strings.Builder
	sb.WriteString("(")
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "$%d", base+i+1)
	}
	sb.WriteString(")")
	return sb.String()
}
