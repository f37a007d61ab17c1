package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"screentime/internal/classifier"
	"screentime/internal/config"
	"screentime/internal/ledger"
	"screentime/internal/metrics"
	"screentime/internal/models"
	"screentime/internal/reporter"
)

type Handler struct {
	config     *config.Config
	ledger     *ledger.Ledger
	classifier *classifier.Classifier
	reporter   *reporter.Reporter
	loc        *time.Location
	logger     zerolog.Logger
	started    time.Time
	now        func() time.Time
}

func NewHandler(cfg *config.Config, led *ledger.Ledger, cls *classifier.Classifier, logger zerolog.Logger) *Handler {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.Local
	}
	return &Handler{
		config:     cfg,
		ledger:     led,
		classifier: cls,
		reporter:   reporter.New(led, cls, cfg.Report, loc),
		loc:        loc,
		logger:     logger.With().Str("component", "web").Logger(),
		started:    time.Now(),
		now:        time.Now,
	}
}

// SetClock replaces the clock used for default day ranges and reports.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
	h.reporter.SetClock(now)
}

// SetupRoutes registers the API on router. /health and /metrics are left
// out of the request metrics.
func (h *Handler) SetupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.requestMiddleware)

	api.HandleFunc("/usage", h.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/rollup", h.handleRollup).Methods(http.MethodGet)
	api.HandleFunc("/report", h.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/day", h.handleDay).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.handleAssignCategory).Methods(http.MethodPost)
	api.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)

	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(wrapped.statusCode)).Inc()

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// dayRange reads start and end query parameters. Missing values default to
// today in the ledger's time zone.
func (h *Handler) dayRange(r *http.Request) (string, string, bool) {
	today := models.DayKey(h.now(), h.loc)
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" {
		start = today
	}
	if end == "" {
		end = start
	}
	return start, end, models.ValidDay(start) && models.ValidDay(end)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.dayRange(r)
	if !ok {
		http.Error(w, "start and end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"start": start,
		"end":   end,
		"usage": h.ledger.Query(start, end),
	})
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.dayRange(r)
	if !ok {
		http.Error(w, "start and end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"start":      start,
		"end":        end,
		"categories": h.ledger.CategoryRollup(start, end),
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		report *models.Report
		err    error
	)

	if query.Get("start") != "" {
		start, end, _ := h.dayRange(r)
		report, err = h.reporter.GenerateRange(start, end)
	} else {
		periodType := query.Get("period")
		if periodType == "" {
			periodType = "day"
		}
		offset := 0
		if s := query.Get("offset"); s != "" {
			if offset, err = strconv.Atoi(s); err != nil {
				http.Error(w, "offset must be an integer", http.StatusBadRequest)
				return
			}
		}
		report, err = h.reporter.GenerateReport(periodType, offset)
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondJSON(w, report)
}

func (h *Handler) handleDay(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = models.DayKey(h.now(), h.loc)
	}

	apps, err := h.reporter.DayDetail(day)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"day":       day,
		"threshold": h.config.Report.DetailThreshold,
		"apps":      apps,
	})
}

type categoryInfo struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type assignRequest struct {
	App      string `json:"app"`
	Category string `json:"category"`
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	var cats []categoryInfo
	for _, name := range h.classifier.Categories() {
		cats = append(cats, categoryInfo{Name: name, Color: h.classifier.Color(name)})
	}
	h.respondJSON(w, map[string]interface{}{
		"categories":  cats,
		"assignments": h.classifier.Assignments(),
	})
}

func (h *Handler) handleAssignCategory(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.App == "" {
		http.Error(w, "app is required", http.StatusBadRequest)
		return
	}
	if err := h.classifier.Assign(r.Context(), req.App, req.Category); err != nil {
		h.logger.Error().Err(err).Str("app", req.App).Msg("Failed to assign category")
		http.Error(w, "failed to save category", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, assignRequest{App: req.App, Category: h.classifier.Classify(req.App)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"running":       true,
		"uptime":        h.now().Sub(h.started).Round(time.Second).String(),
		"poll_interval": h.config.Tracker.PollInterval.String(),
		"storage":       h.config.Storage.Type,
		"held_credits":  h.ledger.Held(),
	}

	if p, ok := h.ledger.Pending(); ok {
		status["current"] = map[string]interface{}{
			"app":      p.App,
			"category": h.classifier.Classify(p.App),
			"since":    p.Start,
		}
	}

	h.respondJSON(w, status)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Error encoding JSON")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
