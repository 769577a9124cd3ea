package datasource

import (
	"context"
	"time"
)

// ItemRevenue is one row of a revenue ranking.
type ItemRevenue struct {
	ItemName string  `json:"item_name" bun:"item_name"`
	Revenue  float64 `json:"revenue" bun:"revenue"`
	Units    int64   `json:"units" bun:"units"`
}

// SizeUnits is one row of a unit-count-by-size ranking.
type SizeUnits struct {
	ItemSize string `json:"item_size" bun:"item_size"`
	Units    int64  `json:"units" bun:"units"`
}

// ProfitRow is one invoice line used for margin calculation.
type ProfitRow struct {
	DocDate       time.Time `json:"doc_date" bun:"doc_date"`
	Quantity      int64     `json:"quantity" bun:"quantity"`
	UnitSalePrice float64   `json:"unit_sale_price" bun:"unit_sale_price"`
	UnitCost      float64   `json:"unit_cost" bun:"unit_cost"`
}

// MonthRevenue is one month of aggregated revenue.
type MonthRevenue struct {
	Month   string  `json:"month" bun:"month"`
	Revenue float64 `json:"revenue" bun:"revenue"`
}

// SalesSource is the read-only structured query capability the core depends
// on. Implementations may be pooled and shared across concurrent callers.
type SalesSource interface {
	TopItemsByRevenue(ctx context.Context, since time.Time, limit int) ([]ItemRevenue, error)
	QuantityBySize(ctx context.Context, limit int) ([]SizeUnits, error)
	ItemProfitRows(ctx context.Context, itemName string, since time.Time) ([]ProfitRow, error)
	MonthlyRevenue(ctx context.Context) ([]MonthRevenue, error)
	Ping(ctx context.Context) error
}
