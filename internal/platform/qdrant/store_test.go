package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/vector"
)

func TestStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/institution_analytics/points" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=wait=true got=%q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	reportID := "0195b6e6-3c51-7a70-b0cf-64ec662f1d3a"
	err := s.Upsert(context.Background(), []vector.Point{
		{ID: reportID, Values: []float32{1, 2, 3}, Payload: map[string]any{"report_type": "institution"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok || len(points) != 1 {
		t.Fatalf("points: got=%v", captured["points"])
	}
	first, ok := points[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", points[0])
	}
	if first["id"] != reportID {
		t.Fatalf("point id: want=%q got=%v", reportID, first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload[payloadPointIDKey] != reportID {
		t.Fatalf("payload point id: got=%v", payload[payloadPointIDKey])
	}
	if payload["report_type"] != "institution" {
		t.Fatalf("payload report_type: got=%v", payload["report_type"])
	}
}

func TestStoreUpsertDimensionMismatch(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected for invalid input")
		return nil, nil
	})

	err := s.Upsert(context.Background(), []vector.Point{
		{ID: "p1", Values: []float32{1, 2}},
	})
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorValidation {
		t.Fatalf("code: want=%q got=%q", OperationErrorValidation, opError.Code)
	}
}

func TestStoreSearchOrdersByScore(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/institution_analytics/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		return okResponse(t, []map[string]any{
			{"id": "a", "score": 0.42, "payload": map[string]any{payloadPointIDKey: "report-a"}},
			{"id": "b", "score": 0.91, "payload": map[string]any{payloadPointIDKey: "report-b"}},
		}), nil
	})

	matches, err := s.Search(context.Background(), []float32{1, 2, 3}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "report-b" || matches[1].ID != "report-a" {
		t.Fatalf("order: got=[%s %s]", matches[0].ID, matches[1].ID)
	}
	if matches[0].Payload[payloadPointIDKey] != "report-b" {
		t.Fatalf("payload carried: got=%v", matches[0].Payload)
	}
}

func TestStoreSearchHTTPErrorSurfacesStatus(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"overloaded"}}`))),
		}, nil
	})

	_, err := s.Search(context.Background(), []float32{1, 2, 3}, 5, nil)
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", opError.StatusCode)
	}
	if !opError.IsTransient() {
		t.Fatalf("503 should be transient")
	}
}

func TestStoreEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var createdBody map[string]any
	calls := 0
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		switch calls {
		case 1:
			if r.Method != http.MethodGet {
				t.Fatalf("first call method: got=%s", r.Method)
			}
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     make(http.Header),
				Body:       io.NopCloser(bytes.NewReader(nil)),
			}, nil
		case 2:
			if r.Method != http.MethodPut {
				t.Fatalf("create method: got=%s", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&createdBody); err != nil {
				t.Fatalf("decode create body: %v", err)
			}
			return okResponse(t, true), nil
		default:
			t.Fatalf("unexpected extra call")
			return nil, nil
		}
	})

	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	vectors, ok := createdBody["vectors"].(map[string]any)
	if !ok {
		t.Fatalf("create body vectors: got=%v", createdBody)
	}
	if vectors["size"] != float64(3) {
		t.Fatalf("vector size: want=3 got=%v", vectors["size"])
	}
	if vectors["distance"] != "Cosine" {
		t.Fatalf("distance: want=Cosine got=%v", vectors["distance"])
	}
}

func TestStoreEnsureCollectionNoopWhenPresent(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return okResponse(t, map[string]any{"status": "green"}), nil
	})

	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestNormalizeScoreEuclid(t *testing.T) {
	s := newTestStore(t, nil)
	s.cfg.Distance = "Euclid"
	got := s.normalizeScore(1.0)
	if got != 0.5 {
		t.Fatalf("normalized euclid score: want=0.5 got=%v", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *store {
	t.Helper()
	client := &http.Client{}
	if roundTrip != nil {
		client.Transport = roundTripFunc(roundTrip)
	}
	return &store{
		log:     newTestLogger(t),
		cfg:     Config{Collection: "institution_analytics", VectorDim: 3, Distance: "Cosine"},
		baseURL: "http://qdrant.local",
		http:    client,
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}
