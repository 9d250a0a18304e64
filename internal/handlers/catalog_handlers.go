package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"geoclim/internal/models"
	"geoclim/internal/repository"
	"geoclim/internal/services"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// CatalogHandler serves datasets, stations and manifest status
type CatalogHandler struct {
	catalog *services.CatalogService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(
	catalog *services.CatalogService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a list payload
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// ListDatasets handles GET /api/datasets
func (h *CatalogHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/datasets", time.Now())

	datasets := h.catalog.Datasets()
	h.metrics.RecordAPIRequest("/api/datasets", "GET", "200")
	h.sendJSON(w, ListResponse{Data: datasets, Total: len(datasets)}, http.StatusOK)
}

// GetDataset handles GET /api/datasets/{id}
func (h *CatalogHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/datasets/{id}", time.Now())

	dataset, err := h.catalog.Dataset(mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, r, "/api/datasets/{id}", err)
		return
	}
	h.metrics.RecordAPIRequest("/api/datasets/{id}", "GET", "200")
	h.sendJSON(w, dataset, http.StatusOK)
}

// ResolveDataset handles GET /api/datasets/{id}/resolve. Every query parameter is
// taken as a dataset parameter value.
func (h *CatalogHandler) ResolveDataset(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/datasets/{id}/resolve", time.Now())

	values := make(map[string]string)
	for name, v := range r.URL.Query() {
		if len(v) > 0 {
			values[name] = v[0]
		}
	}

	resolved, err := h.catalog.Resolve(mux.Vars(r)["id"], values)
	if err != nil {
		h.sendServiceError(w, r, "/api/datasets/{id}/resolve", err)
		return
	}
	h.metrics.RecordAPIRequest("/api/datasets/{id}/resolve", "GET", "200")
	h.sendJSON(w, resolved, http.StatusOK)
}

// ListStations handles GET /api/stations
func (h *CatalogHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/stations", time.Now())

	q := r.URL.Query()
	query := services.StationQuery{
		ActiveOnly:   q.Get("active") == "true",
		CapitalsOnly: q.Get("capitals") == "true",
		Refresh:      q.Get("refresh") == "true",
		IDs:          splitList(q.Get("ids")),
	}
	if yearStr := q.Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil || year < 1 {
			h.sendError(w, r, "invalid year, expected a positive integer", http.StatusBadRequest)
			return
		}
		query.Year = year
	}

	list, err := h.catalog.Stations(ctx, query)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to list stations", logging.Fields{
			"ids": q.Get("ids"),
		}, err)
		h.metrics.RecordAPIError("upstream_error", "/api/stations")
		h.sendError(w, r, "failed to retrieve stations", http.StatusBadGateway)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations", "GET", "200")
	h.sendJSON(w, ListResponse{Data: list, Total: len(list)}, http.StatusOK)
}

// ListUnits handles GET /api/manifest/units
func (h *CatalogHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/manifest/units", time.Now())

	q := r.URL.Query()
	filter := repository.UnitFilter{Limit: 100}

	if v := q.Get("resource_id"); v != "" {
		filter.ResourceID = &v
	}
	if v := q.Get("measurements"); v != "" {
		filter.Measurements = &v
	}
	if v := q.Get("station_id"); v != "" {
		filter.StationID = &v
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			h.sendError(w, r, "invalid year, expected integer", http.StatusBadRequest)
			return
		}
		filter.Year = &year
	}
	if v := q.Get("state"); v != "" {
		state := models.UnitState(v)
		switch state {
		case models.UnitPending, models.UnitDownloading, models.UnitSaved, models.UnitSkippedExists, models.UnitFailed:
		default:
			h.sendError(w, r, "invalid state", http.StatusBadRequest)
			return
		}
		filter.State = &state
	}
	if v := q.Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 1000 {
			filter.Limit = l
		}
	}
	if v := q.Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	units, err := h.catalog.Units(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_UNITS_ERROR] Failed to list manifest units", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/manifest/units")
		h.sendError(w, r, "failed to retrieve units", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/manifest/units", "GET", "200")
	h.sendJSON(w, ListResponse{Data: units, Total: len(units)}, http.StatusOK)
}

// ListRuns handles GET /api/manifest/runs
func (h *CatalogHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/manifest/runs", time.Now())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	runs, err := h.catalog.Runs(ctx, limit)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_RUNS_ERROR] Failed to list runs", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/manifest/runs")
		h.sendError(w, r, "failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/manifest/runs", "GET", "200")
	h.sendJSON(w, ListResponse{Data: runs, Total: len(runs)}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *CatalogHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"manifest":  "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if err := h.catalog.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Manifest unavailable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["manifest"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *CatalogHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// sendServiceError maps typed errors to status codes
func (h *CatalogHandler) sendServiceError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var (
		notFound *models.NotFoundError
		invalid  *models.InvalidParameterError
		tmpl     *models.TemplateRenderError
		verr     *models.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid), errors.As(err, &verr):
		h.metrics.RecordAPIError("invalid_parameter", endpoint)
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	case errors.As(err, &tmpl):
		h.metrics.RecordAPIError("template_error", endpoint)
		h.sendError(w, r, err.Error(), http.StatusInternalServerError)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Unexpected error", logging.Fields{
			"endpoint": endpoint,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *CatalogHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *CatalogHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all catalog API routes
func (h *CatalogHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/datasets", h.ListDatasets).Methods("GET")
	router.HandleFunc("/api/datasets/{id}", h.GetDataset).Methods("GET")
	router.HandleFunc("/api/datasets/{id}/resolve", h.ResolveDataset).Methods("GET")
	router.HandleFunc("/api/stations", h.ListStations).Methods("GET")
	router.HandleFunc("/api/manifest/units", h.ListUnits).Methods("GET")
	router.HandleFunc("/api/manifest/runs", h.ListRuns).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}
