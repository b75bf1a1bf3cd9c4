package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/store"
)

// NewRouter builds the HTTP surface: a debounced run trigger and read-only
// report access.
func NewRouter(trg *Trigger, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
		// The run outlives the request; detach it from the request context.
		err := trg.TryRunAsync(context.WithoutCancel(req.Context()))
		switch {
		case errors.Is(err, ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "minimum interval between runs not elapsed"})
		case errors.Is(err, ErrRunInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	})

	r.Get("/report/latest", func(w http.ResponseWriter, req *http.Request) {
		report, err := st.LatestReport(req.Context())
		writeReport(w, report, err)
	})

	r.Get("/report/{date}", func(w http.ResponseWriter, req *http.Request) {
		date := chi.URLParam(req, "date")
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		report, err := st.ReportForDate(req.Context(), date)
		writeReport(w, report, err)
	})

	return r
}

// NewServer wraps the router in an http.Server on the given port.
func NewServer(trg *Trigger, st store.Store, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(trg, st),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeReport(w http.ResponseWriter, report *model.RunReport, err error) {
	if err != nil {
		zap.L().Error("trigger: report lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report lookup failed"})
		return
	}
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report found"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
