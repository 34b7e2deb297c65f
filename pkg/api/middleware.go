package api

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/openfroyo/stowage/pkg/telemetry"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// withTelemetryContext makes the telemetry instance and any incoming trace
// context available to handlers.
func (s *Server) withTelemetryContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = s.tel.WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handle registers h under pattern with a request span, request metrics and
// an access log line.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	method, route := splitPattern(pattern)

	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx, span := s.tel.Tracer.StartRequestSpan(r.Context(), method, route)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		span.SetAttributes(telemetry.AttrHTTPStatus.Int(rec.status))
		elapsed := time.Since(started)
		s.tel.Metrics.RecordHTTPRequest(method, route, rec.status, elapsed)

		event := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	}))
}

// splitPattern splits "GET /path" into its method and path.
func splitPattern(pattern string) (string, string) {
	method, route, ok := strings.Cut(pattern, " ")
	if !ok {
		return "ANY", pattern
	}
	return method, route
}
