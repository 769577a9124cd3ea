package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/saralytics/saralytics/agent/contract"
	"github.com/saralytics/saralytics/agent/datasource"
)

const (
	ToolProfitAnalysis = "finance.profit_analysis"
	ToolTopItems       = "sales.top_items"
	ToolQuantityBySize = "inventory.quantity_by_size"
)

const (
	defaultTopItemsLimit = 5
	defaultSizeLimit     = 15
	maxRankingLimit      = 50
)

// Catalog builds the fixed tool registry over one shared data source and
// hands each specialist its own disjoint subset.
type Catalog struct {
	source datasource.SalesSource
	now    func() time.Time
}

func NewCatalog(source datasource.SalesSource) *Catalog {
	return &Catalog{source: source, now: time.Now}
}

// ForSpecialist returns the definitions a specialist may call. The returned
// slice is the specialist's entire capability set; tools outside it simply do
// not exist from that specialist's point of view.
func (c *Catalog) ForSpecialist(id contract.SpecialistID) []Definition {
	switch id {
	case contract.SpecialistSales:
		return []Definition{c.topItems()}
	case contract.SpecialistInventory:
		return []Definition{c.quantityBySize()}
	case contract.SpecialistFinance:
		return []Definition{c.profitAnalysis(), c.topItems()}
	default:
		return nil
	}
}

func (c *Catalog) profitAnalysis() Definition {
	return Definition{
		Name: ToolProfitAnalysis,
		Desc: "Exact profit breakdown for a single named item: revenue, cost, profit, and margin. Use whenever profit or margin of a specific item is asked.",
		Params: []Param{
			{Name: "item_name", Type: schema.String, Desc: "Exact item name to analyze", Required: true},
			{Name: "months", Type: schema.Integer, Desc: "Restrict to the last N months; omit for all time"},
		},
		Run: func(ctx context.Context, args map[string]any) (contract.ToolResult, error) {
			itemName := stringArg(args, "item_name")
			since := c.sinceMonths(intArg(args, "months", 0))

			rows, err := c.source.ItemProfitRows(ctx, itemName, since)
			if err != nil {
				return contract.ToolResult{}, fmt.Errorf("%w: %v", contract.ErrSourceUnavailable, err)
			}
			if len(rows) == 0 {
				return contract.ToolResult{
					Tool:   ToolProfitAnalysis,
					NoData: true,
					Payload: map[string]any{
						"item_name": itemName,
						"message":   "no sales records for this item in the requested window",
					},
				}, nil
			}

			var revenue, cost float64
			for _, r := range rows {
				qty := float64(r.Quantity)
				revenue += qty * r.UnitSalePrice
				cost += qty * r.UnitCost
			}
			profit := revenue - cost

			payload := map[string]any{
				"item_name":     itemName,
				"sale_count":    len(rows),
				"total_revenue": revenue,
				"total_cost":    cost,
				"total_profit":  profit,
			}
			// Margin is revenue-weighted: (unit_sale_price - unit_cost) /
			// unit_sale_price per row, aggregated over the window. Undefined
			// when revenue is zero; reported as null rather than 0.
			if revenue > 0 {
				payload["profit_margin"] = profit / revenue
			} else {
				payload["profit_margin"] = nil
			}
			return contract.ToolResult{Tool: ToolProfitAnalysis, Payload: payload}, nil
		},
	}
}

func (c *Catalog) topItems() Definition {
	return Definition{
		Name: ToolTopItems,
		Desc: "Rank items by total sales revenue, optionally within a recent time window.",
		Params: []Param{
			{Name: "limit", Type: schema.Integer, Desc: "How many items to return (default 5)"},
			{Name: "months", Type: schema.Integer, Desc: "Restrict to the last N months; omit for all time"},
		},
		Run: func(ctx context.Context, args map[string]any) (contract.ToolResult, error) {
			limit := clampLimit(intArg(args, "limit", defaultTopItemsLimit))
			since := c.sinceMonths(intArg(args, "months", 0))

			rows, err := c.source.TopItemsByRevenue(ctx, since, limit)
			if err != nil {
				return contract.ToolResult{}, fmt.Errorf("%w: %v", contract.ErrSourceUnavailable, err)
			}
			if len(rows) == 0 {
				return contract.ToolResult{
					Tool:    ToolTopItems,
					NoData:  true,
					Payload: map[string]any{"message": "no sales records in the requested window"},
				}, nil
			}
			return contract.ToolResult{Tool: ToolTopItems, Payload: map[string]any{"items": rows}}, nil
		},
	}
}

func (c *Catalog) quantityBySize() Definition {
	return Definition{
		Name: ToolQuantityBySize,
		Desc: "Total units sold per product size, largest first.",
		Params: []Param{
			{Name: "limit", Type: schema.Integer, Desc: "How many sizes to return (default 15)"},
		},
		Run: func(ctx context.Context, args map[string]any) (contract.ToolResult, error) {
			limit := clampLimit(intArg(args, "limit", defaultSizeLimit))

			rows, err := c.source.QuantityBySize(ctx, limit)
			if err != nil {
				return contract.ToolResult{}, fmt.Errorf("%w: %v", contract.ErrSourceUnavailable, err)
			}
			if len(rows) == 0 {
				return contract.ToolResult{
					Tool:    ToolQuantityBySize,
					NoData:  true,
					Payload: map[string]any{"message": "no sales records"},
				}, nil
			}
			return contract.ToolResult{Tool: ToolQuantityBySize, Payload: map[string]any{"sizes": rows}}, nil
		},
	}
}

func (c *Catalog) sinceMonths(months int) time.Time {
	if months <= 0 {
		return time.Time{}
	}
	return c.now().UTC().AddDate(0, -months, 0)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTopItemsLimit
	}
	if limit > maxRankingLimit {
		return maxRankingLimit
	}
	return limit
}
