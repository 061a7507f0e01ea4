package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/state"
	"github.com/lumenyield/aggregator/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// EngineReader is the read surface the server exposes over HTTP. All methods
// are pure reads against current engine state.
type EngineReader interface {
	Snapshot() types.RegistryView
	Venue(addr types.VenueAddress) (types.VenueRecord, error)
	BestVenue() (types.VenueAddress, uint64)
	TotalAllocated() sdkmath.Int
	PreviewDistribution(amount sdkmath.Int) (types.DistributionPlan, error)
	ProjectedYield(d time.Duration) (sdkmath.Int, error)
}

// WebServer handles HTTP requests for engine state inspection
type WebServer struct {
	router   *mux.Router
	port     string
	engine   EngineReader
	gatherer prometheus.Gatherer
	started  time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, engine EngineReader, gatherer prometheus.Gatherer) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		engine:   engine,
		gatherer: gatherer,
		started:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	if ws.gatherer != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{}))
	}

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/venues", ws.handleGetVenues).Methods("GET")
	api.HandleFunc("/venues/{address}", ws.handleGetVenue).Methods("GET")
	api.HandleFunc("/best-venue", ws.handleGetBestVenue).Methods("GET")
	api.HandleFunc("/total-allocated", ws.handleGetTotalAllocated).Methods("GET")
	api.HandleFunc("/preview", ws.handlePreviewDistribution).Methods("GET")
	api.HandleFunc("/projected-yield", ws.handleProjectedYield).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server and engine health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := ws.engine.Snapshot()

	// A missing database degrades durability, not correctness: the engine
	// keeps serving, so report it without failing the probe.
	dbHealthy := state.TestDBConnection() == nil

	overallStatus := "OK"
	if !dbHealthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "lumenyield-aggregator",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy":    dbHealthy,
			"paused":              snap.Paused,
			"registered_venues":   len(snap.Venues),
			"total_allocated":     snap.TotalAllocated.String(),
			"last_rebalance_time": snap.LastRebalanceTime,
		},
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVenues returns every registered venue plus aggregate state
func (ws *WebServer) handleGetVenues(w http.ResponseWriter, r *http.Request) {
	snap := ws.engine.Snapshot()

	response := map[string]interface{}{
		"venues":              snap.Venues,
		"count":               len(snap.Venues),
		"capacity":            snap.Capacity,
		"total_allocated":     snap.TotalAllocated.String(),
		"paused":              snap.Paused,
		"last_rebalance_time": snap.LastRebalanceTime,
		"limits":              snap.Limits,
		"policy":              snap.Policy,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVenue returns a single venue record by address
func (ws *WebServer) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr := types.VenueAddress(vars["address"])

	rec, err := ws.engine.Venue(addr)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Venue not registered")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, rec)
}

// handleGetBestVenue returns the current highest-yield venue
func (ws *WebServer) handleGetBestVenue(w http.ResponseWriter, r *http.Request) {
	best, yieldBps := ws.engine.BestVenue()
	if best == types.ZeroVenue {
		ws.writeErrorResponse(w, http.StatusNotFound, "No active venues registered")
		return
	}

	response := map[string]interface{}{
		"address":   best,
		"yield_bps": yieldBps,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetTotalAllocated returns the aggregate allocated capital
func (ws *WebServer) handleGetTotalAllocated(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"total_allocated": ws.engine.TotalAllocated().String(),
		"timestamp":       time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handlePreviewDistribution returns the placements a hypothetical allocation
// would make, without executing anything
func (ws *WebServer) handlePreviewDistribution(w http.ResponseWriter, r *http.Request) {
	amountStr := r.URL.Query().Get("amount")
	amount, ok := sdkmath.NewIntFromString(amountStr)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid or missing amount parameter")
		return
	}

	plan, err := ws.engine.PreviewDistribution(amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, plan)
}

// handleProjectedYield returns estimated earnings over a duration, e.g.
// ?duration=720h
func (ws *WebServer) handleProjectedYield(w http.ResponseWriter, r *http.Request) {
	durationStr := r.URL.Query().Get("duration")
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid or missing duration parameter")
		return
	}

	projected, err := ws.engine.ProjectedYield(duration)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	response := map[string]interface{}{
		"duration":        duration.String(),
		"projected_yield": projected.String(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetEvents returns recent engine events from the journal
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	events, err := state.GetRecentEvents(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	response := map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
