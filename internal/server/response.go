package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/service"
)

// Response is the envelope of every API reply.
type Response struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type ctxKey struct{}

// requestID tags each request with a uuid, reusing a client supplied
// X-Request-ID when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// isNil reports nil interfaces and interfaces holding a nil pointer, which
// omitempty would otherwise encode as null.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, resp Response) {
	if isNil(resp.Data) {
		resp.Data = nil
	}
	resp.Timestamp = time.Now().UTC()
	resp.RequestID = requestIDFrom(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, r *http.Request, data any, message string) {
	writeJSON(w, r, http.StatusOK, Response{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, err error, data any) {
	if code >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, r, code, Response{Success: false, Data: data, Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, health.ErrClassifierUnavailable),
		errors.Is(err, service.ErrInputUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidImage),
		errors.Is(err, service.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWateringTooSoon):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusUnauthorized, errors.New("authentication required"), nil)
}
