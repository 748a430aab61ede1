// Package calculator provides the basic math tool.
package calculator

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
)

// ToolName is the name of the calculator tool
const ToolName = "calculator"

// Description is given to the model
const Description = "Perform mathematical calculations. Available operations: add, subtract, multiply, divide, power, square_root. For square_root, only provide the 'a' parameter."

// Operations
const (
	OpAdd        = "add"
	OpSubtract   = "subtract"
	OpMultiply   = "multiply"
	OpDivide     = "divide"
	OpPower      = "power"
	OpSquareRoot = "square_root"
)

// Request is the tool input
type Request struct {
	Operation string   `json:"operation" jsonschema:"description=The operation to perform,enum=add,enum=subtract,enum=multiply,enum=divide,enum=power,enum=square_root"`
	A         float64  `json:"a" jsonschema:"description=The first number"`
	B         *float64 `json:"b,omitempty" jsonschema:"description=The second number. Not used for square_root"`
}

// New returns the calculator tool
func New() tools.Tool[Request] {
	return tools.MustFunc(ToolName, Description, Run)
}

// Run performs the calculation
func Run(_ context.Context, req *Request) (string, error) {
	a := req.A
	second := func(reason string) (float64, error) {
		if req.B == nil {
			return 0, errors.New(reason)
		}
		return *req.B, nil
	}

	var (
		res  float64
		expr string
	)
	switch req.Operation {
	case OpAdd:
		b, err := second("Second number required for addition")
		if err != nil {
			return "", err
		}
		res = a + b
		expr = format(a) + " + " + format(b)
	case OpSubtract:
		b, err := second("Second number required for subtraction")
		if err != nil {
			return "", err
		}
		res = a - b
		expr = format(a) + " - " + format(b)
	case OpMultiply:
		b, err := second("Second number required for multiplication")
		if err != nil {
			return "", err
		}
		res = a * b
		expr = format(a) + " × " + format(b)
	case OpDivide:
		b, err := second("Second number required for division")
		if err != nil {
			return "", err
		}
		if b == 0 {
			return "", errors.New("Cannot divide by zero")
		}
		res = a / b
		expr = format(a) + " ÷ " + format(b)
	case OpPower:
		b, err := second("Exponent required for power operation")
		if err != nil {
			return "", err
		}
		res = math.Pow(a, b)
		expr = format(a) + " ^ " + format(b)
	case OpSquareRoot:
		if a < 0 {
			return "", errors.New("Cannot calculate square root of negative number")
		}
		res = math.Sqrt(a)
		expr = "√" + format(a)
	default:
		return "", errors.Newf("Unknown operation: %s", req.Operation)
	}

	if math.IsNaN(res) || math.IsInf(res, 0) {
		return "", errors.Newf("The result of %s is not a finite number", expr)
	}
	return fmt.Sprintf("%s = %s", expr, format(res)), nil
}

// format returns the shortest representation of the number
func format(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
