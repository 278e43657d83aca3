package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 200, map[string]string{"status": "ok"})
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestProblemUsesProblemMediaType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, 400, "Invalid Query", "limit must be a non-negative integer")

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var problem ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if problem.Status != 400 || problem.Title != "Invalid Query" {
		t.Errorf("problem = %+v", problem)
	}
}
