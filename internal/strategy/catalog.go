package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"teaka/internal/logger"
)

// Catalog 映射 strategies 配置文件。
type Catalog struct {
	Strategies []Definition `yaml:"strategies"`
}

// paramSchemas 按 kind 约束 params 的取值范围。
var paramSchemas = map[Kind]string{
	KindMeanReversion: `{
		"type": "object",
		"properties": {
			"lookback": {"type": "integer", "minimum": 3},
			"deviation_threshold": {"type": "number", "exclusiveMinimum": 0},
			"max_volatility": {"type": "number", "exclusiveMinimum": 0}
		}
	}`,
	KindTrendFollowing: `{
		"type": "object",
		"properties": {
			"lookback": {"type": "integer", "minimum": 3},
			"short_period": {"type": "integer", "minimum": 2},
			"long_period": {"type": "integer", "minimum": 3},
			"min_volatility": {"type": "number", "minimum": 0},
			"min_gap": {"type": "number", "minimum": 0},
			"gap_scale": {"type": "number", "exclusiveMinimum": 0}
		}
	}`,
	KindBreakout: `{
		"type": "object",
		"properties": {
			"lookback": {"type": "integer", "minimum": 4},
			"volatility_multiplier": {"type": "number", "exclusiveMinimum": 0},
			"max_volatility": {"type": "number", "exclusiveMinimum": 0}
		}
	}`,
}

var commonSchemaProps = map[string]any{
	"stop_atr_multiple":        map[string]any{"type": "number", "exclusiveMinimum": 0},
	"take_profit_atr_multiple": map[string]any{"type": "number", "exclusiveMinimum": 0},
	"performance_horizon":      map[string]any{"type": "integer", "minimum": 1},
	"history_limit":            map[string]any{"type": "integer", "minimum": 1},
	"reference_volatility":     map[string]any{"type": "number", "exclusiveMinimum": 0},
}

var compiledSchemas = func() map[Kind]*jsonschema.Schema {
	out := make(map[Kind]*jsonschema.Schema, len(paramSchemas))
	for kind, raw := range paramSchemas {
		schema, err := compileParamSchema(kind, raw)
		if err != nil {
			panic(fmt.Sprintf("strategy schema %s: %v", kind, err))
		}
		out[kind] = schema
	}
	return out
}()

func compileParamSchema(kind Kind, raw string) (*jsonschema.Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	props, _ := doc["properties"].(map[string]any)
	for k, v := range commonSchemaProps {
		props[k] = v
	}
	doc["additionalProperties"] = false
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	name := string(kind) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(merged)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// DefaultDefinitions is the built-in trio used when no catalog file is set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "MeanReversion", Kind: string(KindMeanReversion)},
		{Name: "TrendFollowing", Kind: string(KindTrendFollowing)},
		{Name: "Breakout", Kind: string(KindBreakout)},
	}
}

// LoadCatalog reads a strategy catalog; an empty path yields the defaults.
func LoadCatalog(path string) ([]Definition, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDefinitions(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy catalog failed: %w", err)
	}
	defs, err := ParseCatalog(raw)
	if err != nil {
		return nil, err
	}
	logger.Infof("strategy catalog loaded %d definitions from %s", len(defs), path)
	return defs, nil
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(raw []byte) ([]Definition, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("parse strategy catalog failed: %w", err)
	}
	if len(cat.Strategies) == 0 {
		return nil, fmt.Errorf("strategy catalog is empty")
	}
	for i, def := range cat.Strategies {
		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("strategies[%d]: %w", i, err)
		}
	}
	return cat.Strategies, nil
}

// ValidateDefinition checks the kind and its params against the kind schema.
func ValidateDefinition(def Definition) error {
	kind, err := ParseKind(def.Kind)
	if err != nil {
		return err
	}
	schema := compiledSchemas[kind]
	params := def.Params
	if params == nil {
		params = map[string]any{}
	}
	// yaml decodes ints as int; the validator wants json numbers
	doc, err := toJSONValue(params)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid params for %s: %w", kind, err)
	}
	return nil
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
