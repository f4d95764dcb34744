package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/apperror"
	"fuelstation-cloud/internal/auth"
	cashflowapp "fuelstation-cloud/internal/cashflow/application"
	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
)

// Handler serves reading, shift and handover APIs.
type Handler struct {
	ledger         *cashflowapp.ReadingLedger
	shifts         *cashflowapp.ShiftService
	chain          *cashflowapp.HandoverChain
	stationChecker auth.StationTenantChecker
	logger         *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(
	ledger *cashflowapp.ReadingLedger,
	shifts *cashflowapp.ShiftService,
	chain *cashflowapp.HandoverChain,
	stationChecker auth.StationTenantChecker,
	logger *log.Logger,
) (*Handler, error) {
	if ledger == nil || shifts == nil || chain == nil {
		return nil, errors.New("cashflow handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		ledger:         ledger,
		shifts:         shifts,
		chain:          chain,
		stationChecker: stationChecker,
		logger:         logger,
	}, nil
}

// Routes mounts the cashflow endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/readings", func(r chi.Router) {
		r.Post("/", h.handleRecord)
		r.Post("/{id}/reverse", h.handleReverse)
	})
	r.Route("/api/v1/shifts", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Post("/end", h.handleEnd)
		r.Post("/cancel", h.handleCancel)
		r.Get("/{id}", h.handleGetShift)
		r.Get("/{id}/readings", h.handleShiftReadings)
		r.Get("/{id}/handovers", h.handleShiftHandovers)
	})
	r.Route("/api/v1/handovers", func(r chi.Router) {
		r.Post("/confirm", h.handleConfirm)
		r.Post("/resolve", h.handleResolve)
		r.Get("/{id}", h.handleGetHandover)
	})
}

// Advisory accompanies accepted operations that still deserve attention.
type Advisory struct {
	Kind        string          `json:"kind"`
	Severity    string          `json:"severity,omitempty"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Percent     decimal.Decimal `json:"percent"`
	Message     string          `json:"message"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShiftID       string                `json:"shift_id"`
		NozzleID      string                `json:"nozzle_id"`
		CurrentVolume decimal.NullDecimal   `json:"current_volume"`
		Payment       cashflow.PaymentSplit `json:"payment"`
		RecordedBy    string                `json:"recorded_by"`
	}
	if !decode(w, r, &req) {
		return
	}
	volume, err := required(req.CurrentVolume, "current_volume")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	outcome, err := h.ledger.Record(r.Context(), cashflowapp.RecordReadingCommand{
		ShiftID:       req.ShiftID,
		NozzleID:      req.NozzleID,
		CurrentVolume: volume,
		Payment:       req.Payment,
		RecordedBy:    actor(r, req.RecordedBy),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{
		"reading": outcome.Reading,
		"shift":   outcome.Shift,
	}
	if outcome.Reading.Advisory != "" {
		resp["advisory"] = Advisory{Kind: "low_fuel", Message: outcome.Reading.Advisory}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason  string `json:"reason"`
		ActorID string `json:"actor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	outcome, err := h.ledger.Reverse(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r, req.ActorID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID string `json:"employee_id"`
		StationID  string `json:"station_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = auth.SubjectFromContext(r.Context())
	}
	if tenantID := auth.TenantIDFromContext(r.Context()); tenantID != "" && h.stationChecker != nil {
		if err := h.stationChecker.EnsureStationTenant(r.Context(), tenantID, req.StationID); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	shift, err := h.shifts.Start(r.Context(), req.EmployeeID, req.StationID, actor(r, req.EmployeeID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShiftID      string              `json:"shift_id"`
		ActualCash   decimal.NullDecimal `json:"actual_cash"`
		ActualOnline decimal.NullDecimal `json:"actual_online"`
		ActorID      string              `json:"actor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	cash, err := required(req.ActualCash, "actual_cash")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	online, err := required(req.ActualOnline, "actual_online")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	outcome, err := h.shifts.End(r.Context(), cashflowapp.EndShiftCommand{
		ShiftID:      req.ShiftID,
		ActualCash:   cash,
		ActualOnline: online,
		ActorID:      actor(r, req.ActorID),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{
		"shift":          outcome.Shift,
		"handover":       outcome.Handover,
		"classification": outcome.Classification,
	}
	if advisory := discrepancyAdvisory(outcome.Classification); advisory != nil {
		resp["advisory"] = advisory
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShiftID string `json:"shift_id"`
		ActorID string `json:"actor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	shift, err := h.shifts.Cancel(r.Context(), req.ShiftID, actor(r, req.ActorID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *Handler) handleGetShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.shifts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *Handler) handleShiftReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.ledger.ListByShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if readings == nil {
		readings = []cashflow.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleShiftHandovers(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "id")
	if _, err := h.shifts.Get(r.Context(), shiftID); err != nil {
		h.respondError(w, r, err)
		return
	}
	chain, err := h.chain.ListByShift(r.Context(), shiftID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if chain == nil {
		chain = []cashflow.CashHandover{}
	}
	writeJSON(w, http.StatusOK, chain)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HandoverID string              `json:"handover_id"`
		Actual     decimal.NullDecimal `json:"actual"`
		ActorID    string              `json:"actor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	actual, err := required(req.Actual, "actual")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	current, err := h.chain.Get(r.Context(), req.HandoverID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !auth.RequireRole(r, auth.Role(current.Type.ConfirmerRole())) {
		h.respondError(w, r, cashflow.ErrForbiddenRole)
		return
	}
	outcome, err := h.chain.Confirm(r.Context(), cashflowapp.ConfirmCommand{
		HandoverID: req.HandoverID,
		Actual:     actual,
		ActorID:    actor(r, req.ActorID),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeOutcome(w, outcome)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HandoverID string `json:"handover_id"`
		Notes      string `json:"resolution_notes"`
		ActorID    string `json:"actor_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	outcome, err := h.chain.Resolve(r.Context(), cashflowapp.ResolveCommand{
		HandoverID: req.HandoverID,
		Notes:      req.Notes,
		ActorID:    actor(r, req.ActorID),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeOutcome(w, outcome)
}

func (h *Handler) handleGetHandover(w http.ResponseWriter, r *http.Request) {
	handover, err := h.chain.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, handover)
}

func writeOutcome(w http.ResponseWriter, outcome *cashflowapp.HandoverOutcome) {
	resp := map[string]any{
		"handover": outcome.Handover,
		"replayed": outcome.Replayed,
	}
	if outcome.Next != nil {
		resp["next"] = outcome.Next
	}
	if outcome.Classification != nil {
		resp["classification"] = outcome.Classification
	}
	if advisory := discrepancyAdvisory(outcome.Classification); advisory != nil {
		resp["advisory"] = advisory
	}
	writeJSON(w, http.StatusOK, resp)
}

func discrepancyAdvisory(c *discrepancy.Classification) *Advisory {
	if c == nil || !c.Severity.Flagged() {
		return nil
	}
	return &Advisory{
		Kind:        "discrepancy",
		Severity:    string(c.Severity),
		Discrepancy: c.Discrepancy,
		Percent:     c.Percent,
		Message:     "counted amount differs from expected by " + c.Discrepancy.StringFixed(2),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		err = fmt.Errorf("%w: %v", apperror.ErrForbidden, err)
	case errors.Is(err, auth.ErrNotFound):
		err = fmt.Errorf("%w: %v", apperror.ErrNotFound, err)
	}
	if apperror.KindOf(err) == apperror.KindInternal {
		h.logger.Printf("cashflow api: %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	apperror.Write(w, err)
}

// decode reads a JSON body, rejecting fields the endpoint does not know.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apperror.Write(w, fmt.Errorf("%w: %v", apperror.ErrInvalidJSON, err))
		return false
	}
	return true
}

// required unwraps an amount the caller must send explicitly. An omitted or
// null amount would otherwise count as zero.
func required(v decimal.NullDecimal, field string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", cashflow.ErrMissingField, field)
	}
	return v.Decimal, nil
}

func actor(r *http.Request, fallback string) string {
	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		return subject
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
