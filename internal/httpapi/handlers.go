// Package httpapi serves the rendered chart, run status and archived
// readings.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"thermochart/internal/pipeline"
	"thermochart/internal/reading"
)

// StatusSource reports the most recent successful pipeline run.
type StatusSource interface {
	LastRun() (pipeline.Report, bool)
}

// ReadingStore is the archive used by /api/readings and /healthz.
type ReadingStore interface {
	Readings(ctx context.Context, from, to time.Time, limit int) ([]reading.Reading, error)
	Latest(ctx context.Context) (reading.Reading, bool, error)
}

type handlers struct {
	chartPath string
	status    StatusSource
	store     ReadingStore
}

// NewMux registers the routes. store may be nil when the archive is disabled.
func NewMux(chartPath string, status StatusSource, store ReadingStore) *http.ServeMux {
	h := &handlers{chartPath: chartPath, status: status, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleChart)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /api/readings", h.handleReadings)
	return mux
}

func (h *handlers) handleChart(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.chartPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteError(w, http.StatusNotFound, "chart not rendered yet")
			return
		}
		slog.Error("stat chart", "path", h.chartPath, "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to read chart")
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, h.chartPath)
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "starting", "last_run": nil}
	status := http.StatusServiceUnavailable
	if rep, ok := h.status.LastRun(); ok {
		body["status"], body["last_run"] = "ok", rep
		status = http.StatusOK
	}

	// latest_reading is only reported with the archive enabled; null while
	// the archive is empty.
	if h.store != nil {
		latest, ok, err := h.store.Latest(r.Context())
		switch {
		case err != nil:
			slog.Error("query latest reading", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to query latest reading")
			return
		case ok:
			body["latest_reading"] = latest
		default:
			body["latest_reading"] = nil
		}
	}

	WriteJSON(w, status, body)
}

func (h *handlers) handleReadings(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusNotFound, "reading archive is disabled")
		return
	}

	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.store.Readings(r.Context(), from, to, limit)
	if err != nil {
		slog.Error("query readings", "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}
	if items == nil {
		items = []reading.Reading{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"from":  zeroAsNullTime(from),
		"to":    zeroAsNullTime(to),
		"limit": limit,
		"items": items,
	})
}

func parseReadingsQuery(r *http.Request) (from time.Time, to time.Time, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, 0, errors.New("'from' must be <= 'to'")
	}

	limit = 500
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return time.Time{}, time.Time{}, 0, errors.New("'limit' must be > 0")
		}
		if n > 5000 {
			return time.Time{}, time.Time{}, 0, errors.New("'limit' must be <= 5000")
		}
		limit = n
	}

	return from, to, limit, nil
}

func zeroAsNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
