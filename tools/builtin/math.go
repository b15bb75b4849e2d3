package builtin

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/tools"
)

// ErrDivisionByZero is returned by the division tools.
var ErrDivisionByZero = errors.New("Division by zero is not allowed")

// CalculateInput is the input of the calculate tool.
type CalculateInput struct {
	Operation string  `json:"operation" jsonschema:"description=The arithmetic operation to perform,enum=add,enum=subtract,enum=multiply,enum=divide"`
	A         float64 `json:"a" jsonschema:"description=The first number"`
	B         float64 `json:"b" jsonschema:"description=The second number"`
}

// Calculate performs a basic arithmetic operation.
func Calculate(_ context.Context, in *CalculateInput, _ tools.Channel) (float64, error) {
	switch in.Operation {
	case "add":
		return in.A + in.B, nil
	case "subtract":
		return in.A - in.B, nil
	case "multiply":
		return in.A * in.B, nil
	case "divide":
		if in.B == 0 {
			return 0, ErrDivisionByZero
		}
		return in.A / in.B, nil
	}
	return 0, errors.Errorf("unknown operation: %s", in.Operation)
}

// PairInput is the input of the integer arithmetic tools.
type PairInput struct {
	A int64 `json:"a" jsonschema:"description=The first integer"`
	B int64 `json:"b" jsonschema:"description=The second integer"`
}

// CalculateSum adds two integers and reports the operands as a warning.
func CalculateSum(_ context.Context, in *PairInput, ch tools.Channel) (int64, error) {
	emit(ch, tools.LevelWarning, fmt.Sprintf("Adding %d and %d", in.A, in.B))
	return in.A + in.B, nil
}

// CalculateDifference subtracts b from a.
func CalculateDifference(_ context.Context, in *PairInput, _ tools.Channel) (int64, error) {
	return in.A - in.B, nil
}

// CalculateProduct multiplies two integers.
func CalculateProduct(_ context.Context, in *PairInput, ch tools.Channel) (int64, error) {
	emit(ch, tools.LevelInfo, fmt.Sprintf("Multiplying %d and %d", in.A, in.B))
	return in.A * in.B, nil
}

// CalculateQuotient divides a by b.
func CalculateQuotient(_ context.Context, in *PairInput, _ tools.Channel) (float64, error) {
	if in.B == 0 {
		return 0, ErrDivisionByZero
	}
	return float64(in.A) / float64(in.B), nil
}

func emit(ch tools.Channel, level tools.Level, msg string) {
	if ch != nil {
		ch.Emit(level, msg)
	}
}
