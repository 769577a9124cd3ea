package specialist

import (
	"context"
	"fmt"

	"github.com/saralytics/saralytics/agent/contract"
	llmx "github.com/saralytics/saralytics/agent/llm"
	promptx "github.com/saralytics/saralytics/agent/prompt"
	routerx "github.com/saralytics/saralytics/agent/router"
	toolx "github.com/saralytics/saralytics/agent/tool"
)

type registryImpl struct {
	router      contract.Router
	specialists map[contract.SpecialistID]contract.Specialist
}

var _ contract.Registry = (*registryImpl)(nil)

func (r *registryImpl) Router() contract.Router {
	return r.router
}

func (r *registryImpl) Specialist(id contract.SpecialistID) (contract.Specialist, bool) {
	s, ok := r.specialists[id]
	return s, ok
}

// personas returns the fixed specialist set with the prompts bound in.
func personas(prompts promptx.PromptSet) []Persona {
	return []Persona{
		{
			ID:           contract.SpecialistSales,
			Name:         "Sam",
			Description:  "Sales trends, revenue, top-selling products, sale dates.",
			SystemPrompt: prompts.Sales,
		},
		{
			ID:           contract.SpecialistInventory,
			Name:         "Ivy",
			Description:  "Stock movement, unit counts, product sizes.",
			SystemPrompt: prompts.Inventory,
		},
		{
			ID:           contract.SpecialistFinance,
			Name:         "Finn",
			Description:  "Profit, profit margins, costs, financial analysis of items.",
			SystemPrompt: prompts.Finance,
		},
	}
}

// NewRegistry builds the router and all specialists. Each specialist gets an
// executor over its own tool subset only, so the capability sandbox holds
// even if a model names a tool from another domain.
func NewRegistry(
	ctx context.Context,
	cfg llmx.Config,
	catalog *toolx.Catalog,
	opts ...Option,
) (contract.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: tool catalog is required", contract.ErrValidation)
	}

	prompts := promptx.LoadPromptSet()
	all := personas(prompts)

	entries := make([]routerx.CatalogEntry, 0, len(all))
	for _, p := range all {
		entries = append(entries, routerx.CatalogEntry{ID: p.ID, Description: p.Description})
	}

	routerCfg := cfg.ForRouter()
	routerModel, err := routerCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create router model: %v", contract.ErrRoutingUnavailable, err)
	}
	rt, err := routerx.New(ctx, routerModel, prompts.Router, entries)
	if err != nil {
		return nil, err
	}

	specialists := make(map[contract.SpecialistID]contract.Specialist, len(all))
	for _, p := range all {
		modelCfg := cfg.ForSpecialist(p.ID)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contract.ErrReasoningModelUnavailable, p.ID, err)
		}

		defs := catalog.ForSpecialist(p.ID)
		spec, err := New(p, chatModel, toolx.NewExecutor(defs), defs, opts...)
		if err != nil {
			return nil, err
		}
		specialists[p.ID] = spec
	}

	return &registryImpl{router: rt, specialists: specialists}, nil
}
