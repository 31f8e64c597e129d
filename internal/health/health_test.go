package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rr *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "always-down", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest("GET", "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Healthz status = %d, want 200", rr.Code)
	}
	if rep := decodeReport(t, rr); rep.Status != "ok" {
		t.Fatalf("Healthz body status = %q, want ok", rep.Status)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "database", Check: func(context.Context) error { return nil }},
		Checker{Name: "transcriber", Check: func(context.Context) error { return nil }},
	)

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Readyz status = %d, want 200", rr.Code)
	}
	rep := decodeReport(t, rr)
	if rep.Status != "ok" {
		t.Fatalf("body status = %q, want ok", rep.Status)
	}
	for _, name := range []string{"database", "transcriber"} {
		if got := rep.Checks[name].Status; got != "ok" {
			t.Errorf("check %q status = %q, want ok", name, got)
		}
	}
}

func TestReadyz_OneFails(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "database", Check: func(context.Context) error { return nil }},
		Checker{Name: "transcriber", Check: func(context.Context) error {
			return errors.New("model load failed")
		}},
	)

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Readyz status = %d, want 503", rr.Code)
	}
	rep := decodeReport(t, rr)
	if rep.Status != "fail" {
		t.Fatalf("body status = %q, want fail", rep.Status)
	}
	if got := rep.Checks["database"].Status; got != "ok" {
		t.Errorf("database check = %q, want ok", got)
	}
	tc := rep.Checks["transcriber"]
	if tc.Status != "fail" || tc.Error != "model load failed" {
		t.Errorf("transcriber check = %+v, want fail with load error", tc)
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	New().Readyz(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Readyz status = %d, want 200", rr.Code)
	}
}

func TestReadyz_ProbeSeesDeadline(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline set")
		}
		return nil
	}})

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Readyz status = %d, want 200 (probe must get a deadline)", rr.Code)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rr.Code)
		}
	}
}
