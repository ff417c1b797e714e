package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterMapScalarAndIn(t *testing.T) {
	filter := map[string]any{
		"report_type": "institution",
		"region": map[string]any{
			"$in": []any{"north", "south"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	typeCond := findConditionByKey(got.Must, "report_type")
	if typeCond == nil {
		t.Fatalf("missing report_type condition")
	}
	typeMatch, ok := typeCond["match"].(map[string]any)
	if !ok || typeMatch["value"] != "institution" {
		t.Fatalf("report_type match: got=%v", typeCond["match"])
	}

	regionCond := findConditionByKey(got.Must, "region")
	if regionCond == nil {
		t.Fatalf("missing region condition")
	}
	regionMatch, ok := regionCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("region match type: got=%T", regionCond["match"])
	}
	anyVals, ok := regionMatch["any"].([]any)
	if !ok || len(anyVals) != 2 {
		t.Fatalf("region any values: got=%v", regionMatch["any"])
	}
}

func TestTranslateFilterMapNe(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"institution_id": map[string]any{"$ne": "inst-1"},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.MustNot) != 1 {
		t.Fatalf("must_not length: want=1 got=%d", len(got.MustNot))
	}
	cond := findConditionByKey(got.MustNot, "institution_id")
	if cond == nil {
		t.Fatalf("missing institution_id must_not condition")
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != "inst-1" {
		t.Fatalf("institution_id must_not match: got=%v", cond["match"])
	}
}

func TestTranslateFilterMapLogicalOps(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"$or": []any{
			map[string]any{"region": "north"},
			map[string]any{"region": "east"},
		},
		"$not": map[string]any{"report_type": "market"},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Should) != 2 {
		t.Fatalf("should length: want=2 got=%d", len(got.Should))
	}
	if len(got.MustNot) != 1 {
		t.Fatalf("must_not length: want=1 got=%d", len(got.MustNot))
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"overall_score": map[string]any{"$gt": 80},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, opError.Code)
	}
}

func TestTranslateFilterMapEmpty(t *testing.T) {
	got, err := translateFilterMap(nil)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.asMap()) != 0 {
		t.Fatalf("empty filter should translate to empty map: got=%v", got.asMap())
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
