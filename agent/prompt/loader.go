package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/inventory.txt
	inventoryRaw string

	//go:embed template/finance.txt
	financeRaw string
)

// PromptSet holds the system prompts for the router and each specialist.
type PromptSet struct {
	Router    string
	Sales     string
	Inventory string
	Finance   string
}

// LoadPromptSet returns the embedded prompts, trimmed. Safe to call
// concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:    strings.TrimSpace(routerRaw),
		Sales:     strings.TrimSpace(salesRaw),
		Inventory: strings.TrimSpace(inventoryRaw),
		Finance:   strings.TrimSpace(financeRaw),
	}
}
