package builtin

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/tools"
)

var toMeters = map[string]float64{
	"meters":     1,
	"feet":       0.3048,
	"inches":     0.0254,
	"kilometers": 1000,
	"miles":      1609.34,
}

// ConvertUnitsInput is the input of the convert_units tool.
type ConvertUnitsInput struct {
	Value    float64 `json:"value" jsonschema:"description=The value to convert"`
	FromUnit string  `json:"from_unit" jsonschema:"description=The unit to convert from,enum=meters,enum=feet,enum=inches,enum=kilometers,enum=miles"`
	ToUnit   string  `json:"to_unit" jsonschema:"description=The unit to convert to,enum=meters,enum=feet,enum=inches,enum=kilometers,enum=miles"`
}

// ConvertUnitsOutput is the result of a conversion.
type ConvertUnitsOutput struct {
	OriginalValue  float64 `json:"original_value"`
	OriginalUnit   string  `json:"original_unit"`
	ConvertedValue float64 `json:"converted_value"`
	ConvertedUnit  string  `json:"converted_unit"`
}

// ConvertUnits converts a length between units.
func ConvertUnits(_ context.Context, in *ConvertUnitsInput, _ tools.Channel) (*ConvertUnitsOutput, error) {
	from, ok := toMeters[in.FromUnit]
	if !ok {
		return nil, errors.Errorf("Unsupported unit: %s", in.FromUnit)
	}
	to, ok := toMeters[in.ToUnit]
	if !ok {
		return nil, errors.Errorf("Unsupported unit: %s", in.ToUnit)
	}
	return &ConvertUnitsOutput{
		OriginalValue:  in.Value,
		OriginalUnit:   in.FromUnit,
		ConvertedValue: in.Value * from / to,
		ConvertedUnit:  in.ToUnit,
	}, nil
}
