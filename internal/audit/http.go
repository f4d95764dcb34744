package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fuelstation-cloud/internal/apperror"
	"fuelstation-cloud/internal/auth"
)

const maxListLimit = 500

var (
	errInvalidLimit   = apperror.New(apperror.KindValidation, "InvalidLimit", "audit: limit must be a positive integer")
	errMissingTarget  = apperror.New(apperror.KindValidation, "MissingField", "audit: station_id or resource_id is required")
	errMissingStation = apperror.New(apperror.KindValidation, "MissingField", "audit: station_id is required")
)

// ClientIP returns the first forwarded address, X-Real-IP, or the peer host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Reader queries the audit trail.
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
	Verify(ctx context.Context, stationID string) (Verification, error)
}

// Handler serves the audit trail to managers.
type Handler struct {
	reader   Reader
	stations auth.StationTenantChecker
	logger   *log.Logger
}

// NewHandler constructs a Handler.
func NewHandler(reader Reader, stations auth.StationTenantChecker, logger *log.Logger) (*Handler, error) {
	if reader == nil {
		return nil, errors.New("audit handler: nil reader")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{reader: reader, stations: stations, logger: logger}, nil
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/audit-logs", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/verify", h.handleVerify)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := Filter{
		TenantID:     auth.TenantIDFromContext(r.Context()),
		StationID:    query.Get("station_id"),
		ResourceType: query.Get("resource_type"),
		ResourceID:   query.Get("resource_id"),
		Limit:        100,
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			apperror.Write(w, errInvalidLimit)
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if filter.StationID == "" && filter.ResourceID == "" {
		apperror.Write(w, errMissingTarget)
		return
	}
	if !h.allowed(w, r, filter.StationID) {
		return
	}
	entries, err := h.reader.List(r.Context(), filter)
	if err != nil {
		h.logger.Printf("audit api: list failed: %v", err)
		apperror.Write(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		apperror.Write(w, errMissingStation)
		return
	}
	if !h.allowed(w, r, stationID) {
		return
	}
	result, err := h.reader.Verify(r.Context(), stationID)
	if err != nil {
		h.logger.Printf("audit api: verify %s failed: %v", stationID, err)
		apperror.Write(w, err)
		return
	}
	status := http.StatusOK
	if !result.Intact {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, stationID string) bool {
	if stationID == "" {
		return true
	}
	var err error
	if !auth.StationAllowed(r.Context(), stationID) {
		err = auth.ErrStationNotAssigned
	} else if h.stations != nil {
		err = h.stations.EnsureStationTenant(r.Context(), auth.TenantIDFromContext(r.Context()), stationID)
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrForbidden):
		apperror.Write(w, fmt.Errorf("%w: %v", apperror.ErrForbidden, err))
	case errors.Is(err, auth.ErrNotFound):
		apperror.Write(w, fmt.Errorf("%w: %v", apperror.ErrNotFound, err))
	default:
		h.logger.Printf("audit api: station check failed: %v", err)
		apperror.Write(w, err)
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
