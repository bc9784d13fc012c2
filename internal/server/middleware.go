package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PerpSettle/internal/engine"
	"PerpSettle/internal/margin"
	"PerpSettle/internal/verifier"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with latency and error metrics and a debug log.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			if sw.status >= 400 {
				s.metrics.RequestErrors.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
			}
		}
		s.log.Debug().Str("route", route).Str("method", r.Method).
			Int("status", sw.status).Dur("elapsed", elapsed).Msg("request")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine and ledger errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnauthorized), errors.Is(err, engine.ErrNotCoordinator):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInsufficientMargin),
		errors.Is(err, engine.ErrInsufficientCollateral),
		errors.Is(err, margin.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrMarketClosed),
		errors.Is(err, engine.ErrSettleOnly),
		errors.Is(err, engine.ErrStalePrice),
		errors.Is(err, engine.ErrPendingLimit),
		errors.Is(err, engine.ErrMakerLimitExceeded),
		errors.Is(err, engine.ErrEfficiencyLimitExceeded),
		errors.Is(err, engine.ErrNotLiquidatable),
		errors.Is(err, engine.ErrReferrerMismatch):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrProtectedOrder),
		errors.Is(err, engine.ErrIntentFee),
		errors.Is(err, engine.ErrIntentPrice),
		errors.Is(err, engine.ErrIntentOriginator),
		errors.Is(err, engine.ErrInvalidParameter),
		errors.Is(err, margin.ErrNegativeAmount):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

// writeVerifierError maps signed-message rejections onto HTTP statuses.
// Replay and authorization failures are all 403; only a wrong domain or an
// expired envelope is the client's formatting problem.
func writeVerifierError(w http.ResponseWriter, err error) {
	status := http.StatusForbidden
	switch {
	case errors.Is(err, verifier.ErrInvalidDomain), errors.Is(err, verifier.ErrExpired):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}
