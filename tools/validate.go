package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/schema"
)

// ValidationError is returned when tool arguments do not match the parameter schema
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for tool %q: %q %s", e.Tool, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ValidateArgs checks the arguments against the parameters,
// and returns the arguments with numeric and boolean strings coerced,
// and enum values matched case-insensitively.
func ValidateArgs(tool string, params []schema.Property, args map[string]any) (map[string]any, error) {
	res := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			res[k] = v
		}
	}

	for _, p := range params {
		v, ok := res[p.Name]
		if !ok {
			if p.Required {
				return nil, &ValidationError{Tool: tool, Field: p.Name, Reason: "is required"}
			}
			continue
		}

		cv, err := coerce(p.Type, v)
		if err != nil {
			return nil, &ValidationError{Tool: tool, Field: p.Name, Reason: err.Error()}
		}
		if len(p.Enum) > 0 {
			cv, err = matchEnum(p.Enum, cv)
			if err != nil {
				return nil, &ValidationError{Tool: tool, Field: p.Name, Reason: err.Error()}
			}
		}
		res[p.Name] = cv
	}
	return res, nil
}

func coerce(typ string, v any) (any, error) {
	switch typ {
	case "", "null":
		return v, nil
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
	case "number", "integer":
		f, ok := toFloat(v)
		if !ok {
			break
		}
		if typ == "integer" {
			if math.Trunc(f) != f {
				return nil, errors.Newf("expected integer, got %v", v)
			}
			return int64(f), nil
		}
		return f, nil
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if pb, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return pb, nil
			}
		}
	case "object":
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	case "array":
		if a, ok := v.([]any); ok {
			return a, nil
		}
	default:
		return nil, errors.Newf("unsupported schema type %q", typ)
	}
	return nil, errors.Newf("expected %s, got %s", typ, describe(v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func matchEnum(enum []any, v any) (any, error) {
	s := fmt.Sprint(v)
	for _, e := range enum {
		es := fmt.Sprint(e)
		if es == s {
			return v, nil
		}
		if _, ok := v.(string); ok && strings.EqualFold(es, s) {
			return e, nil
		}
	}
	allowed := make([]string, 0, len(enum))
	for _, e := range enum {
		allowed = append(allowed, fmt.Sprint(e))
	}
	return nil, errors.Newf("must be one of: %s", strings.Join(allowed, ", "))
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return fmt.Sprintf("string %q", v)
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
