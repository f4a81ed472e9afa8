package surrealsync

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// healthTimeout bounds the store ping of a health check.
const healthTimeout = 2 * time.Second

// handleHealth reports whether the relational store answers and how many
// listeners are running. It answers 503 when the store is unreachable.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := a.rel.Ping(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Health check failed")
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":    status,
		"listeners": a.engine.Listeners(),
		"read_only": a.IsReadOnly(),
		"time":      time.Now().Unix(),
	})
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	stats, err := a.engine.GetSyncStatistics(r.Context(), days)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to compute sync statistics")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (a *App) handleFailed(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	failed, err := a.engine.GetFailedSyncs(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list failed syncs")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, failed)
}

// handleRetry runs one retry pass. It is refused in read-only mode.
func (a *App) handleRetry(w http.ResponseWriter, r *http.Request) {
	if a.IsReadOnly() {
		respondError(w, http.StatusConflict, "retries are disabled in read-only mode")
		return
	}
	report, err := a.engine.RetryFailedSyncs(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Retry pass failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// queryInt parses an optional integer query parameter. Missing values are 0.
// On a malformed value it writes a 400 response and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// logRequests logs every request at debug level.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
