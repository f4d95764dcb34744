package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fuelstation-cloud/internal/apperror"
	"fuelstation-cloud/internal/audit"
	"fuelstation-cloud/internal/auth"
	"fuelstation-cloud/internal/observability/metrics"
	settlementapp "fuelstation-cloud/internal/settlement/application"
	settlement "fuelstation-cloud/internal/settlement/domain"
)

var errUnsupportedFormat = apperror.New(apperror.KindValidation, "UnsupportedFormat", "settlement: export format must be pdf or xlsx")

// SettlementHandler handles settlement APIs.
type SettlementHandler struct {
	finalizer      *settlementapp.Finalizer
	stationChecker auth.StationTenantChecker
	auditLogger    audit.Logger
	logger         *log.Logger
}

// NewSettlementHandler constructs a handler.
func NewSettlementHandler(finalizer *settlementapp.Finalizer, stationChecker auth.StationTenantChecker, auditLogger audit.Logger, logger *log.Logger) (*SettlementHandler, error) {
	if finalizer == nil {
		return nil, errors.New("settlement handler: nil finalizer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SettlementHandler{
		finalizer:      finalizer,
		stationChecker: stationChecker,
		auditLogger:    auditLogger,
		logger:         logger,
	}, nil
}

// Routes mounts settlement routes under /api/v1/settlements.
func (h *SettlementHandler) Routes(r chi.Router) {
	r.Route("/api/v1/settlements", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/close", h.handleClose)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/export", h.handleExport)
	})
}

func (h *SettlementHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID  string `json:"station_id"`
		Date       string `json:"date"`
		PreparedBy string `json:"prepared_by"`
		ApprovedBy string `json:"approved_by"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apperror.Write(w, fmt.Errorf("%w: %v", apperror.ErrInvalidJSON, err))
		return
	}
	if err := ensureStation(r, h.stationChecker, req.StationID); err != nil {
		h.respondError(w, r, err)
		return
	}
	preparedBy := auth.SubjectFromContext(r.Context())
	if preparedBy == "" {
		preparedBy = req.PreparedBy
	}
	s, err := h.finalizer.ClosePeriod(r.Context(), settlementapp.ClosePeriodCommand{
		StationID:  req.StationID,
		Date:       req.Date,
		PreparedBy: preparedBy,
		ApprovedBy: req.ApprovedBy,
	})
	if err != nil {
		var notReady *settlement.NotReadyError
		if errors.As(err, &notReady) {
			writeJSON(w, apperror.HTTPStatus(err), struct {
				apperror.Body
				Blockers []settlement.Blocker `json:"blockers"`
			}{Body: apperror.BodyOf(err), Blockers: notReady.Blockers})
			return
		}
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *SettlementHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stationID := query.Get("station_id")
	if err := ensureStation(r, h.stationChecker, stationID); err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.finalizer.List(r.Context(), stationID, query.Get("from"), query.Get("to"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SettlementHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.finalizer.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettlementHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementExport(format, result, time.Since(start))
	}()

	var build func(*settlement.Settlement) ([]byte, error)
	var contentType string
	switch format {
	case "pdf":
		build, contentType = BuildSettlementPDF, "application/pdf"
	case "xlsx":
		build, contentType = BuildSettlementXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		result = metrics.ResultRejected
		apperror.Write(w, fmt.Errorf("%w: %q", errUnsupportedFormat, format))
		return
	}

	s, err := h.finalizer.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, r, err)
		return
	}
	data, err := build(s)
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, r, fmt.Errorf("settlement export %s as %s: %w", s.ID, format, err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+s.StationID+"-"+settlement.FormatDate(s.BusinessDate)+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, s, "settlement.export", map[string]any{"format": format})
}

func (h *SettlementHandler) logAudit(r *http.Request, s *settlement.Settlement, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "settlement",
		ResourceID:   s.ID,
		StationID:    s.StationID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("audit log failed: action=%s ref=%s err=%v", action, s.ID, err)
	}
}

func (h *SettlementHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		err = fmt.Errorf("%w: %v", apperror.ErrForbidden, err)
	case errors.Is(err, auth.ErrNotFound):
		err = fmt.Errorf("%w: %v", apperror.ErrNotFound, err)
	}
	if apperror.KindOf(err) == apperror.KindInternal {
		h.logger.Printf("settlement api: %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	apperror.Write(w, err)
}

// ensureStation checks the caller's roster, then station ownership when the
// request is authenticated.
func ensureStation(r *http.Request, checker auth.StationTenantChecker, stationID string) error {
	if stationID == "" {
		return nil
	}
	if !auth.StationAllowed(r.Context(), stationID) {
		return auth.ErrStationNotAssigned
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if checker == nil || tenantID == "" {
		return nil
	}
	return checker.EnsureStationTenant(r.Context(), tenantID, stationID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
