package cli

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fuelstation-cloud/internal/audit"
	"fuelstation-cloud/internal/auth"
	cashflowhttp "fuelstation-cloud/internal/cashflow/interfaces/http"
	settlementinterfaces "fuelstation-cloud/internal/settlement/interfaces"
)

func newRouter(a *app, cfg config, logger *log.Logger) (http.Handler, error) {
	cashflowHandler, err := cashflowhttp.NewHandler(a.ledger, a.shifts, a.chain, a.stationChecker, logger)
	if err != nil {
		return nil, err
	}
	settlementHandler, err := settlementinterfaces.NewSettlementHandler(a.finalizer, a.stationChecker, a.auditRepo, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	if a.auditRepo != nil {
		auditHandler, err := audit.NewHandler(a.auditRepo, a.stationChecker, logger)
		if err != nil {
			return nil, err
		}
		auditHandler.Routes(r)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	cashflowHandler.Routes(r)
	settlementHandler.Routes(r)

	var handler http.Handler = r
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(handler)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set: serving without authentication")
	}
	return loggingMiddleware(handler, logger), nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
