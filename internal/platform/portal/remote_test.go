package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newSidecar(t *testing.T) (*httptest.Server, *map[string]int) {
	t.Helper()
	calls := map[string]int{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		var cfg SessionConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if cfg.Browser == "" {
			http.Error(w, `{"error":"browser required"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"session_id": "s1"})
	})
	mux.HandleFunc("POST /session/s1/login", func(w http.ResponseWriter, r *http.Request) {
		calls["login"]++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /session/s1/navigate", func(w http.ResponseWriter, r *http.Request) {
		calls["navigate"]++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /session/s1/filter", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		calls["filter:"+body["group"]]++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /session/s1/prescriptions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"prescription_id": "P1", "patient_name": "A", "row_index": 0},
			{"prescription_id": "P2", "patient_name": "B", "row_index": 1},
		})
	})
	mux.HandleFunc("GET /session/s1/prescriptions/P1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"prescription_id": "P1",
			"patient":         map[string]string{"name": "A", "national_id": "12345678901"},
			"drugs":           []map[string]any{{"name": "VEMLIDY", "quantity": "30"}},
		})
	})
	mux.HandleFunc("GET /session/s1/drugs/VEMLIDY/ingredient", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"active_ingredient": "TENOFOVIR ALAFENAMID"})
	})
	mux.HandleFunc("GET /session/s1/reports/R100001/dose", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ingredient") == "" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"authorized_dose": "30"})
	})
	mux.HandleFunc("DELETE /session/s1", func(w http.ResponseWriter, r *http.Request) {
		calls["close"]++
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func openDriver(t *testing.T) (*RemoteDriver, *map[string]int) {
	t.Helper()
	srv, calls := newSidecar(t)
	d, err := NewRemoteDriver(context.Background(), srv.URL, SessionConfig{
		PortalURL: "https://portal.example",
		Browser:   "A",
		Headless:  true,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewRemoteDriver: %v", err)
	}
	return d, calls
}

func TestRemoteDriverSessionFlow(t *testing.T) {
	d, calls := openDriver(t)
	ctx := context.Background()

	if err := d.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := d.NavigateToList(ctx); err != nil {
		t.Fatalf("NavigateToList: %v", err)
	}
	if err := d.ApplyFilter(ctx, GroupA); err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}

	rows, err := d.ExtractPrescriptions(ctx, 10)
	if err != nil {
		t.Fatalf("ExtractPrescriptions: %v", err)
	}
	if len(rows) != 2 || rows[0].PrescriptionID != "P1" {
		t.Fatalf("rows = %+v", rows)
	}

	p, err := d.ExtractPrescriptionDetail(ctx, rows[0])
	if err != nil {
		t.Fatalf("ExtractPrescriptionDetail: %v", err)
	}
	if p.PrescriptionID != "P1" || len(p.Drugs) != 1 {
		t.Fatalf("detail = %+v", p)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if (*calls)["login"] != 1 || (*calls)["filter:A"] != 1 || (*calls)["close"] != 1 {
		t.Errorf("calls = %+v", *calls)
	}
}

func TestRemoteDriverLookups(t *testing.T) {
	d, _ := openDriver(t)
	ctx := context.Background()

	ingredient, err := d.LookupActiveIngredient(ctx, "VEMLIDY")
	if err != nil {
		t.Fatalf("LookupActiveIngredient: %v", err)
	}
	if ingredient != "TENOFOVIR ALAFENAMID" {
		t.Errorf("ingredient = %q", ingredient)
	}

	dose, err := d.LookupReportDose(ctx, "R100001", ingredient)
	if err != nil {
		t.Fatalf("LookupReportDose: %v", err)
	}
	if dose != "30" {
		t.Errorf("dose = %q", dose)
	}

	if _, err := d.LookupActiveIngredient(ctx, "UNKNOWN"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown drug: %v", err)
	}
}

func TestRemoteDriverRejectedSession(t *testing.T) {
	srv, _ := newSidecar(t)
	_, err := NewRemoteDriver(context.Background(), srv.URL, SessionConfig{}, time.Second)
	if err == nil {
		t.Fatal("expected session open to fail without a browser kind")
	}
}
