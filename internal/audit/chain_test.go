package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"fuelstation-cloud/internal/auth"
)

func chain(entries ...Entry) []Entry {
	prev := ""
	for i := range entries {
		entries[i].PayloadDigest = DigestJSON(entries[i].Metadata)
		entries[i].PrevDigest = prev
		entries[i].ChainDigest = LinkDigest(prev, entries[i])
		prev = entries[i].ChainDigest
	}
	return entries
}

func sampleChain() []Entry {
	at := time.Date(2024, 5, 1, 6, 0, 0, 123456789, time.UTC)
	return chain(
		Entry{ID: "a-1", StationID: "st-1", Action: "shift.started", ResourceID: "sh-1", Actor: "emp-1", Metadata: json.RawMessage(`{"after":{"id":"sh-1"}}`), CreatedAt: at},
		Entry{ID: "a-2", StationID: "st-1", Action: "shift.ended", ResourceID: "sh-1", Actor: "emp-1", Metadata: json.RawMessage(`{"after":{"id":"sh-1","status":"ended"}}`), CreatedAt: at.Add(time.Hour)},
		Entry{ID: "a-3", StationID: "st-1", Action: "handover.confirmed", ResourceID: "ho-1", Actor: "mgr-1", Metadata: json.RawMessage(`{"after":{"id":"ho-1"}}`), CreatedAt: at.Add(2 * time.Hour)},
	)
}

func TestVerifyChain(t *testing.T) {
	if got := VerifyChain("st-1", sampleChain()); !got.Intact || got.Entries != 3 {
		t.Fatalf("untouched chain must verify: %+v", got)
	}
	if got := VerifyChain("st-1", nil); !got.Intact {
		t.Fatalf("empty chain is intact: %+v", got)
	}

	cases := []struct {
		name   string
		tamper func([]Entry) []Entry
		broken string
	}{
		{
			name: "edited metadata",
			tamper: func(e []Entry) []Entry {
				e[1].Metadata = json.RawMessage(`{"after":{"id":"sh-1","status":"cancelled"}}`)
				return e
			},
			broken: "a-2",
		},
		{
			name: "edited actor",
			tamper: func(e []Entry) []Entry {
				e[2].Actor = "own-1"
				return e
			},
			broken: "a-3",
		},
		{
			name:   "deleted entry",
			tamper: func(e []Entry) []Entry { return append(e[:1], e[2:]...) },
			broken: "a-3",
		},
		{
			name: "reordered",
			tamper: func(e []Entry) []Entry {
				e[0], e[1] = e[1], e[0]
				return e
			},
			broken: "a-2",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifyChain("st-1", tc.tamper(sampleChain()))
			if got.Intact || got.BrokenAt != tc.broken {
				t.Fatalf("expected break at %s, got %+v", tc.broken, got)
			}
		})
	}
}

func TestLinkDigestIgnoresSubMicrosecond(t *testing.T) {
	e := Entry{ID: "a-1", CreatedAt: time.Date(2024, 5, 1, 6, 0, 0, 123456789, time.UTC)}
	stored := e
	stored.CreatedAt = e.CreatedAt.Truncate(time.Microsecond)
	if LinkDigest("", e) != LinkDigest("", stored) {
		t.Fatal("digest must survive the round trip through a microsecond column")
	}
}

type fakeReader struct {
	entries []Entry
	filter  Filter
	err     error
}

func (f *fakeReader) List(_ context.Context, filter Filter) ([]Entry, error) {
	f.filter = filter
	return f.entries, f.err
}

func (f *fakeReader) Verify(_ context.Context, stationID string) (Verification, error) {
	if f.err != nil {
		return Verification{}, f.err
	}
	return VerifyChain(stationID, f.entries), nil
}

func newAuditRouter(t *testing.T, reader Reader) http.Handler {
	t.Helper()
	h, err := NewHandler(reader, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestHandlerList(t *testing.T) {
	reader := &fakeReader{entries: sampleChain()}
	router := newAuditRouter(t, reader)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/?station_id=st-1&resource_type=shift&limit=1000", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleManager, "mgr-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if reader.filter.TenantID != "tenant-1" || reader.filter.ResourceType != "shift" || reader.filter.Limit != maxListLimit {
		t.Fatalf("unexpected filter: %+v", reader.filter)
	}
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil || len(entries) != 3 {
		t.Fatalf("unexpected body: %v %d", err, len(entries))
	}

	for _, target := range []string{"/api/v1/audit-logs/", "/api/v1/audit-logs/?station_id=st-1&limit=x"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", target, resp.Code)
		}
	}

	reader.err = errors.New("db down")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/?resource_id=sh-1", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestHandlerVerify(t *testing.T) {
	entries := sampleChain()
	reader := &fakeReader{entries: entries}
	router := newAuditRouter(t, reader)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/verify?station_id=st-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	entries[0].Actor = "someone-else"
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/verify?station_id=st-1", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a broken chain, got %d", resp.Code)
	}
	var result Verification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.BrokenAt != "a-1" {
		t.Fatalf("unexpected verification: %+v err=%v", result, err)
	}
}
