package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// SaleInvoice mirrors the sale_invoice table: one row per invoiced line item.
type SaleInvoice struct {
	bun.BaseModel `bun:"table:sale_invoice,alias:si"`

	ID            int64     `bun:"id,pk,autoincrement"`
	DocDate       time.Time `bun:"doc_date"`
	ItemName      string    `bun:"item_name"`
	ItemSize      string    `bun:"item_size"`
	Quantity      int64     `bun:"quantity"`
	UnitSalePrice float64   `bun:"unit_sale_price"`
	UnitCost      float64   `bun:"unit_cost"`
	TotalValue    float64   `bun:"total_value"`
}

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"10s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
}

// PostgresSource implements SalesSource over a pooled bun connection.
// Every query is read-only; the pool needs no extra locking.
type PostgresSource struct {
	db      *bun.DB
	timeout time.Duration
}

var _ SalesSource = (*PostgresSource)(nil)

func NewPostgresSource(cfg Config) (*PostgresSource, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("datasource dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PostgresSource{
		db:      bun.NewDB(sqldb, pgdialect.New()),
		timeout: timeout,
	}, nil
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PostgresSource) TopItemsByRevenue(ctx context.Context, since time.Time, limit int) ([]ItemRevenue, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var rows []ItemRevenue
	q := s.db.NewSelect().
		Model((*SaleInvoice)(nil)).
		ColumnExpr("item_name").
		ColumnExpr("SUM(total_value) AS revenue").
		ColumnExpr("SUM(quantity) AS units").
		GroupExpr("item_name").
		OrderExpr("revenue DESC").
		Limit(limit)
	if !since.IsZero() {
		q = q.Where("doc_date >= ?", since)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("query top items: %w", err)
	}
	return rows, nil
}

func (s *PostgresSource) QuantityBySize(ctx context.Context, limit int) ([]SizeUnits, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var rows []SizeUnits
	err := s.db.NewSelect().
		Model((*SaleInvoice)(nil)).
		ColumnExpr("item_size").
		ColumnExpr("SUM(quantity) AS units").
		GroupExpr("item_size").
		OrderExpr("units DESC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("query quantity by size: %w", err)
	}
	return rows, nil
}

func (s *PostgresSource) ItemProfitRows(ctx context.Context, itemName string, since time.Time) ([]ProfitRow, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var rows []ProfitRow
	q := s.db.NewSelect().
		Model((*SaleInvoice)(nil)).
		Column("doc_date", "quantity", "unit_sale_price", "unit_cost").
		Where("item_name = ?", itemName).
		OrderExpr("doc_date ASC")
	if !since.IsZero() {
		q = q.Where("doc_date >= ?", since)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("query profit rows: %w", err)
	}
	return rows, nil
}

func (s *PostgresSource) MonthlyRevenue(ctx context.Context) ([]MonthRevenue, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var rows []MonthRevenue
	err := s.db.NewSelect().
		Model((*SaleInvoice)(nil)).
		ColumnExpr("to_char(doc_date, 'YYYY-MM') AS month").
		ColumnExpr("SUM(total_value) AS revenue").
		GroupExpr("to_char(doc_date, 'YYYY-MM')").
		OrderExpr("month ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("query monthly revenue: %w", err)
	}
	return rows, nil
}

func (s *PostgresSource) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
