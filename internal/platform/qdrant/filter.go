package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

const (
	filterOpAnd = "$and"
	filterOpOr  = "$or"
	filterOpNot = "$not"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
	filterOpNe  = "$ne"
)

type translatedFilter struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (f translatedFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.Should) > 0 {
		out["should"] = f.Should
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

// translateFilterMap converts the mongo-style filter the services speak
// into qdrant's must/should/must_not structure. Keys are visited in
// sorted order so translation is deterministic.
func translateFilterMap(filter map[string]any) (translatedFilter, error) {
	out := translatedFilter{}
	if len(filter) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filter[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}

		if strings.HasPrefix(k, "$") {
			if err := translateLogicalOp(&out, strings.ToLower(k), value); err != nil {
				return translatedFilter{}, err
			}
			continue
		}

		if err := translateFieldFilter(&out, k, value); err != nil {
			return translatedFilter{}, err
		}
	}

	return out, nil
}

func translateLogicalOp(out *translatedFilter, op string, value any) error {
	switch op {
	case filterOpAnd, filterOpOr:
		items, ok := value.([]any)
		if !ok {
			return opErr("filter_translate", OperationErrorValidation,
				fmt.Sprintf("operator %s expects array of objects", op), nil)
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s expects array of objects", op), nil)
			}
			sub, err := translateFilterMap(obj)
			if err != nil {
				return err
			}
			if op == filterOpAnd {
				out.Must = append(out.Must, sub.asMap())
			} else {
				out.Should = append(out.Should, sub.asMap())
			}
		}
		return nil
	case filterOpNot:
		obj, ok := value.(map[string]any)
		if !ok {
			return opErr("filter_translate", OperationErrorValidation,
				fmt.Sprintf("operator %s expects an object", filterOpNot), nil)
		}
		sub, err := translateFilterMap(obj)
		if err != nil {
			return err
		}
		out.MustNot = append(out.MustNot, sub.asMap())
		return nil
	default:
		return opErr("filter_translate", OperationErrorUnsupportedFilter,
			fmt.Sprintf("unsupported top-level filter operator %q", op), nil)
	}
}

func translateFieldFilter(out *translatedFilter, field string, value any) error {
	operators, isOpMap := value.(map[string]any)
	if !isOpMap {
		scalar, ok := toScalar(value)
		if !ok {
			return opErr("filter_translate", OperationErrorValidation,
				fmt.Sprintf("field %q expects scalar value or operator object", field), nil)
		}
		out.Must = append(out.Must, matchCondition(field, scalar))
		return nil
	}

	if len(operators) == 0 {
		return opErr("filter_translate", OperationErrorValidation,
			fmt.Sprintf("field %q has empty operator map", field), nil)
	}

	ops := make([]string, 0, len(operators))
	for op := range operators {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		opVal := operators[op]
		switch strings.ToLower(strings.TrimSpace(op)) {
		case filterOpEq:
			scalar, ok := toScalar(opVal)
			if !ok {
				return opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar value", filterOpEq, field), nil)
			}
			out.Must = append(out.Must, matchCondition(field, scalar))
		case filterOpNe:
			scalar, ok := toScalar(opVal)
			if !ok {
				return opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar value", filterOpNe, field), nil)
			}
			out.MustNot = append(out.MustNot, matchCondition(field, scalar))
		case filterOpIn:
			values, err := toScalarSlice(opVal)
			if err != nil || len(values) == 0 {
				return opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects non-empty scalar array", filterOpIn, field), err)
			}
			out.Must = append(out.Must, map[string]any{
				"key":   field,
				"match": map[string]any{"any": values},
			})
		default:
			return opErr("filter_translate", OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported filter operator %q for field %q", op, field), nil)
		}
	}
	return nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalar(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []int:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []float64:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

func toScalar(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int, int64, uint64, float64:
		return typed, true
	case int8:
		return int(typed), true
	case int16:
		return int(typed), true
	case int32:
		return int(typed), true
	case uint:
		return uint64(typed), true
	case uint8:
		return int(typed), true
	case uint16:
		return int(typed), true
	case uint32:
		return uint64(typed), true
	case float32:
		return float64(typed), true
	default:
		return nil, false
	}
}
