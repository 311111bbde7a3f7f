package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/domain/repository"
	applogger "CapFlow/pkg/logger"
	"CapFlow/pkg/sqldb"
	"CapFlow/pkg/util"
)

// Rows per multi-row INSERT.
const insertChunk = 500

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name   string
	schema func(table string) []string
	upsert string // appended to INSERT; empty for engines that dedupe on merge
	final  string // appended to FROM in reads
	// dateArg converts a calendar day into a bind argument.
	dateArg func(time.Time) any
}

var dialects = map[string]dialect{
	sqldb.DriverClickHouse: {
		name: sqldb.DriverClickHouse,
		schema: func(table string) []string {
			return []string{fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					date         Date,
					bucket       LowCardinality(String),
					net_flow_usd Float64,
					aum_usd      Nullable(Float64),
					price_ccy    String,
					ccy          String,
					ingested_at  DateTime DEFAULT now()
				) ENGINE = ReplacingMergeTree(ingested_at)
				ORDER BY (bucket, date)`, table)}
		},
		final:   " FINAL",
		dateArg: func(t time.Time) any { return util.Day(t) },
	},
	sqldb.DriverSQLite: {
		name: sqldb.DriverSQLite,
		schema: func(table string) []string {
			return []string{
				fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					date         TEXT NOT NULL,
					bucket       TEXT NOT NULL,
					net_flow_usd REAL NOT NULL,
					aum_usd      REAL,
					price_ccy    TEXT NOT NULL DEFAULT '',
					ccy          TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (date, bucket)
				)`, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_bucket ON %s (bucket, date)`, table, table),
			}
		},
		upsert:  upsertClause,
		dateArg: func(t time.Time) any { return util.FormatDate(t) },
	},
	sqldb.DriverPostgres: {
		name: sqldb.DriverPostgres,
		schema: func(table string) []string {
			return []string{
				fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					date         DATE NOT NULL,
					bucket       TEXT NOT NULL,
					net_flow_usd DOUBLE PRECISION NOT NULL,
					aum_usd      DOUBLE PRECISION,
					price_ccy    TEXT NOT NULL DEFAULT '',
					ccy          TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (date, bucket)
				)`, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_bucket ON %s (bucket, date)`, table, table),
			}
		},
		upsert:  upsertClause,
		dateArg: func(t time.Time) any { return util.FormatDate(t) },
	},
}

const upsertClause = ` ON CONFLICT (date, bucket) DO UPDATE SET
	net_flow_usd = excluded.net_flow_usd,
	aum_usd = excluded.aum_usd,
	price_ccy = excluded.price_ccy,
	ccy = excluded.ccy`

// SQLObservationStore implements ObservationStore over database/sql.
// A (date, bucket) pair holds at most one observation; later writes win.
type SQLObservationStore struct {
	db      *sql.DB
	table   string
	dialect dialect
	l       *applogger.Logger
}

// NewSQLObservationStore binds a store to an open database. driver is one of
// the sqldb driver names.
func NewSQLObservationStore(db *sql.DB, driver, table string, l *applogger.Logger) (*SQLObservationStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if table == "" {
		table = "flow_observations"
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SQLObservationStore{db: db, table: table, dialect: d, l: l}, nil
}

var _ repository.ObservationStore = (*SQLObservationStore)(nil)

func (s *SQLObservationStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// StoreBatch writes observations in chunks. Duplicate (date, bucket) pairs
// within the batch collapse to the last one.
func (s *SQLObservationStore) StoreBatch(ctx context.Context, obs []models.FlowObservation) error {
	obs = dedupe(obs)
	if len(obs) == 0 {
		return nil
	}
	start := time.Now()

	for lo := 0; lo < len(obs); lo += insertChunk {
		hi := min(lo+insertChunk, len(obs))

		values := make([]string, 0, hi-lo)
		args := make([]any, 0, (hi-lo)*6)
		for _, o := range obs[lo:hi] {
			n := len(args)
			values = append(values, "("+s.placeholders(n, 6)+")")
			var aum any
			if o.AUM != nil {
				aum = *o.AUM
			}
			args = append(args, s.dialect.dateArg(o.Date), o.Bucket, o.NetFlow, aum, o.PriceCurrency, o.Currency)
		}

		q := fmt.Sprintf("INSERT INTO %s (date, bucket, net_flow_usd, aum_usd, price_ccy, ccy) VALUES %s%s",
			s.table, strings.Join(values, ","), s.dialect.upsert)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("observation insert failed",
				applogger.String("dialect", s.dialect.name),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("store batch: %w", err)
		}
	}

	s.l.Debug("observations stored",
		applogger.String("dialect", s.dialect.name),
		applogger.Int("rows", len(obs)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Query returns observations with from <= date <= to ordered by (date, bucket).
// Zero bounds are open. A nil buckets slice means all buckets; an empty one none.
func (s *SQLObservationStore) Query(ctx context.Context, from, to time.Time, buckets []string) ([]models.FlowObservation, error) {
	if buckets != nil && len(buckets) == 0 {
		return []models.FlowObservation{}, nil
	}

	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "date >= "+s.placeholders(len(args), 1))
		args = append(args, s.dialect.dateArg(from))
	}
	if !to.IsZero() {
		where = append(where, "date <= "+s.placeholders(len(args), 1))
		args = append(args, s.dialect.dateArg(to))
	}
	if len(buckets) > 0 {
		where = append(where, "bucket IN ("+s.placeholders(len(args), len(buckets))+")")
		for _, b := range buckets {
			args = append(args, b)
		}
	}

	q := fmt.Sprintf("SELECT date, bucket, net_flow_usd, aum_usd, price_ccy, ccy FROM %s%s", s.table, s.dialect.final)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date ASC, bucket ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := make([]models.FlowObservation, 0, 256)
	for rows.Next() {
		var (
			date     any
			o        models.FlowObservation
			aum      sql.NullFloat64
			priceCcy sql.NullString
			ccy      sql.NullString
		)
		if err := rows.Scan(&date, &o.Bucket, &o.NetFlow, &aum, &priceCcy, &ccy); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		if aum.Valid {
			v := aum.Float64
			o.AUM = &v
		}
		o.PriceCurrency = priceCcy.String
		o.Currency = ccy.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLObservationStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the *sql.DB belongs to whoever opened it.
func (s *SQLObservationStore) Close() error {
	return nil
}

// placeholders renders n bind markers starting after offset existing args.
func (s *SQLObservationStore) placeholders(offset, n int) string {
	marks := make([]string, n)
	for i := range marks {
		if s.dialect.name == sqldb.DriverPostgres {
			marks[i] = fmt.Sprintf("$%d", offset+i+1)
		} else {
			marks[i] = "?"
		}
	}
	return strings.Join(marks, ", ")
}

func scanDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return util.Day(d), nil
	case string:
		return util.ParseDate(d)
	case []byte:
		return util.ParseDate(string(d))
	default:
		return time.Time{}, fmt.Errorf("unexpected date type %T", v)
	}
}

func dedupe(obs []models.FlowObservation) []models.FlowObservation {
	type key struct {
		date   string
		bucket string
	}
	idx := make(map[key]int, len(obs))
	out := make([]models.FlowObservation, 0, len(obs))
	for _, o := range obs {
		if o.Bucket == "" || o.Date.IsZero() {
			continue
		}
		k := key{util.FormatDate(o.Date), o.Bucket}
		if i, ok := idx[k]; ok {
			out[i] = o
			continue
		}
		idx[k] = len(out)
		out = append(out, o)
	}
	return out
}
