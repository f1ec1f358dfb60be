// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package httpapi

import (
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument bounds the body, then logs and counts the request under route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		elapsed := time.Since(start)
		s.observer.ObserveRequest(route, rec.status, elapsed)
		s.logger.DebugContext(r.Context(), "request handled",
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds())
	})
}
