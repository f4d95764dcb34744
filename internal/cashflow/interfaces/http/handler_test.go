package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/auth"
	cashflowapp "fuelstation-cloud/internal/cashflow/application"
	"fuelstation-cloud/internal/cashflow/infrastructure/memory"
	"fuelstation-cloud/internal/cashflow/infrastructure/pricing"
	"fuelstation-cloud/internal/discrepancy"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

type nozzleMap map[string]masterdata.Nozzle

func (m nozzleMap) Get(_ context.Context, id string) (*masterdata.Nozzle, error) {
	nozzle, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &nozzle, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	prices, err := pricing.NewFixedPriceProvider(decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("price provider: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	opts := []cashflowapp.Option{
		cashflowapp.WithDetector(discrepancy.NewDetector(discrepancy.Config{}, discrepancy.WithLogger(logger))),
		cashflowapp.WithLogger(logger),
	}
	nozzles := nozzleMap{"n-1": {ID: "n-1", StationID: "st-1", FuelType: "diesel"}}
	ledger, err := cashflowapp.NewReadingLedger(store.Readings(), store.Shifts(), nozzles, prices, opts...)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	shifts, _ := cashflowapp.NewShiftService(store.Shifts(), opts...)
	chain, _ := cashflowapp.NewHandoverChain(store.Handovers(), opts...)
	handler, err := NewHandler(ledger, shifts, chain, nil, logger)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	r := chi.NewRouter()
	handler.Routes(r)
	return r
}

func do(t *testing.T, router http.Handler, ctx context.Context, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestCashflowAPIFlow(t *testing.T) {
	router := newTestRouter(t)

	rec, shift := do(t, router, nil, http.MethodPost, "/api/v1/shifts/start", map[string]any{
		"employee_id": "emp-1", "station_id": "st-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}
	shiftID, _ := shift["id"].(string)

	rec, body := do(t, router, nil, http.MethodPost, "/api/v1/readings", map[string]any{
		"shift_id": shiftID, "nozzle_id": "n-1", "current_volume": "10",
		"payment": map[string]any{"cash": "800", "online": "100"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatched split: status %d", rec.Code)
	}
	detail, _ := body["error"].(map[string]any)
	if detail["code"] != "PaymentSplitMismatch" {
		t.Fatalf("unexpected error body: %v", body)
	}

	rec, _ = do(t, router, nil, http.MethodPost, "/api/v1/readings", map[string]any{
		"shift_id": shiftID, "nozzle_id": "n-1", "current_volume": "10",
		"payment": map[string]any{"cash": "900", "online": "100"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, body = do(t, router, nil, http.MethodPost, "/api/v1/shifts/end", map[string]any{
		"shift_id": shiftID, "actual_cash": "850", "actual_online": "100",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("end: status %d body %s", rec.Code, rec.Body.String())
	}
	if _, ok := body["advisory"]; !ok {
		t.Fatalf("flagged variance must carry an advisory: %v", body)
	}
	handover, _ := body["handover"].(map[string]any)
	handoverID, _ := handover["id"].(string)

	rec, body = do(t, router, nil, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID, "actual": "850",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}
	if _, ok := body["next"]; !ok {
		t.Fatalf("confirmed step must open the next one: %v", body)
	}

	rec, _ = do(t, router, nil, http.MethodPost, "/api/v1/handovers/resolve", map[string]any{
		"handover_id": handoverID, "resolution_notes": "n/a",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("resolve confirmed step: status %d", rec.Code)
	}

	rec, _ = do(t, router, nil, http.MethodGet, "/api/v1/shifts/"+shiftID+"/handovers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list handovers: status %d", rec.Code)
	}
	var chain []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &chain); err != nil || len(chain) != 2 {
		t.Fatalf("expected 2 steps, got %s", rec.Body.String())
	}

	rec, _ = do(t, router, nil, http.MethodGet, "/api/v1/shifts/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing shift: status %d", rec.Code)
	}
}

func TestConfirmRequiresStepRole(t *testing.T) {
	router := newTestRouter(t)
	attendant := auth.WithIdentity(context.Background(), "tenant-1", auth.RoleAttendant, "emp-1")

	_, shift := do(t, router, attendant, http.MethodPost, "/api/v1/shifts/start", map[string]any{"station_id": "st-1"})
	shiftID, _ := shift["id"].(string)
	if shift["employee_id"] != "emp-1" {
		t.Fatalf("employee must default to the token subject: %v", shift)
	}
	_, ended := do(t, router, attendant, http.MethodPost, "/api/v1/shifts/end", map[string]any{
		"shift_id": shiftID, "actual_cash": "0", "actual_online": "0",
	})
	handover, _ := ended["handover"].(map[string]any)
	handoverID, _ := handover["id"].(string)

	rec, body := do(t, router, attendant, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID, "actual": "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("attendant confirms collection: status %d body %s", rec.Code, rec.Body.String())
	}
	next, _ := body["next"].(map[string]any)
	nextID, _ := next["id"].(string)

	rec, _ = do(t, router, attendant, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": nextID, "actual": "0",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("attendant must not confirm staff_to_manager: status %d", rec.Code)
	}

	manager := auth.WithIdentity(context.Background(), "tenant-1", auth.RoleManager, "mgr-1")
	rec, _ = do(t, router, manager, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": nextID, "actual": "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("manager confirms staff_to_manager: status %d", rec.Code)
	}

	other := auth.WithIdentity(context.Background(), "tenant-2", auth.RoleOwner, "own-2")
	rec, _ = do(t, router, other, http.MethodGet, "/api/v1/handovers/"+nextID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant must not see the step: status %d", rec.Code)
	}
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func errorKind(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	kind, _ := detail["kind"].(string)
	return kind
}

func TestAmountsAreRequired(t *testing.T) {
	router := newTestRouter(t)

	_, shift := do(t, router, nil, http.MethodPost, "/api/v1/shifts/start", map[string]any{
		"employee_id": "emp-1", "station_id": "st-1",
	})
	shiftID, _ := shift["id"].(string)

	rec, body := do(t, router, nil, http.MethodPost, "/api/v1/readings", map[string]any{
		"shift_id": shiftID, "nozzle_id": "n-1", "payment": map[string]any{"cash": "1000"},
	})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(body) != "MissingField" {
		t.Fatalf("reading without current_volume: status %d body %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, router, nil, http.MethodPost, "/api/v1/readings", map[string]any{
		"shift_id": shiftID, "nozzle_id": "n-1", "current_volume": "10",
		"payment": map[string]any{"cash": "1000"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: status %d body %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{name: "misspelled field", body: map[string]any{"shift_id": shiftID, "actualCash": "1000", "actual_online": "0"}, code: "InvalidJSON"},
		{name: "no amounts", body: map[string]any{"shift_id": shiftID}, code: "MissingField"},
		{name: "no online amount", body: map[string]any{"shift_id": shiftID, "actual_cash": "1000"}, code: "MissingField"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, router, nil, http.MethodPost, "/api/v1/shifts/end", tc.body)
			if rec.Code != http.StatusUnprocessableEntity || errorCode(body) != tc.code {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
			_, current := do(t, router, nil, http.MethodGet, "/api/v1/shifts/"+shiftID, nil)
			if current["status"] != "active" {
				t.Fatalf("rejected end must leave the shift active: %v", current)
			}
		})
	}

	rec, ended := do(t, router, nil, http.MethodPost, "/api/v1/shifts/end", map[string]any{
		"shift_id": shiftID, "actual_cash": "1000", "actual_online": "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("end: status %d body %s", rec.Code, rec.Body.String())
	}
	handover, _ := ended["handover"].(map[string]any)
	handoverID, _ := handover["id"].(string)

	rec, body = do(t, router, nil, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID, "actual_amount": "1000",
	})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(body) != "InvalidJSON" {
		t.Fatalf("confirm with unknown field: status %d body %s", rec.Code, rec.Body.String())
	}
	rec, body = do(t, router, nil, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID,
	})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(body) != "MissingField" {
		t.Fatalf("confirm without actual: status %d body %s", rec.Code, rec.Body.String())
	}
	rec, body = do(t, router, nil, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID, "actual": "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}
	confirmed, _ := body["handover"].(map[string]any)
	if confirmed["status"] != "confirmed" {
		t.Fatalf("unexpected confirm body: %v", body)
	}
}

func TestStationRosterIsEnforced(t *testing.T) {
	router := newTestRouter(t)
	base := context.Background()
	attendant := auth.WithStations(auth.WithIdentity(base, "tenant-1", auth.RoleAttendant, "emp-1"), "st-1")
	foreign := auth.WithStations(auth.WithIdentity(base, "tenant-1", auth.RoleManager, "mgr-2"), "st-2")
	owner := auth.WithStations(auth.WithIdentity(base, "tenant-1", auth.RoleOwner, "own-1"), "st-2")

	rec, _ := do(t, router, foreign, http.MethodPost, "/api/v1/shifts/start", map[string]any{
		"employee_id": "emp-9", "station_id": "st-1",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("start on a foreign station: status %d", rec.Code)
	}

	_, shift := do(t, router, attendant, http.MethodPost, "/api/v1/shifts/start", map[string]any{"station_id": "st-1"})
	shiftID, _ := shift["id"].(string)
	rec, recorded := do(t, router, attendant, http.MethodPost, "/api/v1/readings", map[string]any{
		"shift_id": shiftID, "nozzle_id": "n-1", "current_volume": "10",
		"payment": map[string]any{"cash": "1000"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: status %d body %s", rec.Code, rec.Body.String())
	}
	reading, _ := recorded["reading"].(map[string]any)
	readingID, _ := reading["id"].(string)

	denied := []struct {
		name   string
		method string
		path   string
		body   map[string]any
	}{
		{name: "record", method: http.MethodPost, path: "/api/v1/readings", body: map[string]any{
			"shift_id": shiftID, "nozzle_id": "n-1", "current_volume": "20", "payment": map[string]any{"cash": "1000"},
		}},
		{name: "reverse", method: http.MethodPost, path: "/api/v1/readings/" + readingID + "/reverse", body: map[string]any{"reason": "typo"}},
		{name: "end", method: http.MethodPost, path: "/api/v1/shifts/end", body: map[string]any{
			"shift_id": shiftID, "actual_cash": "1000", "actual_online": "0",
		}},
		{name: "cancel", method: http.MethodPost, path: "/api/v1/shifts/cancel", body: map[string]any{"shift_id": shiftID}},
		{name: "get shift", method: http.MethodGet, path: "/api/v1/shifts/" + shiftID},
		{name: "list readings", method: http.MethodGet, path: "/api/v1/shifts/" + shiftID + "/readings"},
	}
	for _, tc := range denied {
		t.Run(tc.name, func(t *testing.T) {
			var body any
			if tc.body != nil {
				body = tc.body
			}
			rec, decoded := do(t, router, foreign, tc.method, tc.path, body)
			if rec.Code != http.StatusForbidden || errorKind(decoded) != "forbidden" {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
		})
	}

	_, current := do(t, router, attendant, http.MethodGet, "/api/v1/shifts/"+shiftID, nil)
	if current["status"] != "active" || current["reading_count"] != float64(1) {
		t.Fatalf("denied calls must not change the shift: %v", current)
	}

	rec, ended := do(t, router, attendant, http.MethodPost, "/api/v1/shifts/end", map[string]any{
		"shift_id": shiftID, "actual_cash": "1000", "actual_online": "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rostered end: status %d body %s", rec.Code, rec.Body.String())
	}
	handover, _ := ended["handover"].(map[string]any)
	handoverID, _ := handover["id"].(string)

	rec, _ = do(t, router, foreign, http.MethodPost, "/api/v1/handovers/confirm", map[string]any{
		"handover_id": handoverID, "actual": "1000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("confirm on a foreign station: status %d", rec.Code)
	}
	rec, _ = do(t, router, foreign, http.MethodPost, "/api/v1/handovers/resolve", map[string]any{
		"handover_id": handoverID, "resolution_notes": "n/a",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("resolve on a foreign station: status %d", rec.Code)
	}

	rec, _ = do(t, router, owner, http.MethodGet, "/api/v1/handovers/"+handoverID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owners see every station: status %d", rec.Code)
	}
}

func TestMalformedBodyReturnsJSONError(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/start", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not json: %s", rec.Body.String())
	}
	if errorCode(body) != "InvalidJSON" {
		t.Fatalf("unexpected body %v", body)
	}
}
