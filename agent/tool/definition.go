package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/saralytics/saralytics/agent/contract"
)

// Param declares one argument of a tool schema.
type Param struct {
	Name     string
	Type     schema.DataType
	Desc     string
	Required bool
}

// Definition pairs a tool's declared schema with its deterministic run
// function. Run is only reached with arguments that passed ValidateArgs.
type Definition struct {
	Name   string
	Desc   string
	Params []Param
	Run    func(ctx context.Context, args map[string]any) (contract.ToolResult, error)
}

// Info renders the definition as the tool schema handed to the model.
func (d Definition) Info() *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(d.Params))
	for _, p := range d.Params {
		params[p.Name] = &schema.ParameterInfo{
			Type:     p.Type,
			Desc:     p.Desc,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        d.Name,
		Desc:        d.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// ValidateArgs checks required presence and value types against the declared
// schema. Unknown argument names are tolerated and ignored by Run.
func (d Definition) ValidateArgs(args map[string]any) error {
	for _, p := range d.Params {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		if err := checkType(p, raw); err != nil {
			return err
		}
	}
	return nil
}

func checkType(p Param, raw any) error {
	switch p.Type {
	case schema.String:
		if _, ok := raw.(string); !ok {
			return fmt.Errorf("argument %q must be a string, got %T", p.Name, raw)
		}
	case schema.Integer:
		if _, ok := asInt(raw); !ok {
			return fmt.Errorf("argument %q must be an integer, got %T", p.Name, raw)
		}
	case schema.Number:
		switch raw.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("argument %q must be a number, got %T", p.Name, raw)
		}
	case schema.Boolean:
		if _, ok := raw.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean, got %T", p.Name, raw)
		}
	}
	return nil
}

// asInt accepts the integer encodings a JSON decode can produce.
func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int64(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

func intArg(args map[string]any, name string, fallback int) int {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fallback
	}
	if n, ok := asInt(raw); ok {
		return n
	}
	return fallback
}
