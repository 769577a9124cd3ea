package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/saralytics/saralytics/agent/contract"
	openrouterx "github.com/saralytics/saralytics/pkg/openrouter"
)

// Config selects the backing models. The router typically runs a fast, cheap
// classification model while specialists run a stronger reasoning model; all
// of them default to Model unless overridden.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RouterModel    string `envconfig:"ROUTER_MODEL" split_words:"true"`
	SalesModel     string `envconfig:"SALES_MODEL" split_words:"true"`
	InventoryModel string `envconfig:"INVENTORY_MODEL" split_words:"true"`
	FinanceModel   string `envconfig:"FINANCE_MODEL" split_words:"true"`

	RouterTemperature     float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"-1"`
	SpecialistTemperature float32 `envconfig:"SPECIALIST_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", contract.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contract.ErrValidation)
	}
	return nil
}

// ForRouter resolves the classification model config.
func (c Config) ForRouter() openrouterx.Config {
	return c.resolve(c.RouterModel, c.RouterTemperature)
}

// ForSpecialist resolves the reasoning model config for one specialist.
func (c Config) ForSpecialist(id contract.SpecialistID) openrouterx.Config {
	override := ""
	switch id {
	case contract.SpecialistSales:
		override = c.SalesModel
	case contract.SpecialistInventory:
		override = c.InventoryModel
	case contract.SpecialistFinance:
		override = c.FinanceModel
	}
	return c.resolve(override, c.SpecialistTemperature)
}

func (c Config) resolve(modelOverride string, tempOverride float32) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	if v := strings.TrimSpace(modelOverride); v != "" {
		modelName = v
	}
	temp := c.Temperature
	if tempOverride >= 0 {
		temp = tempOverride
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
