package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"code-relay-backend/internal/api/middleware"
	"code-relay-backend/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

var corsConfig = middleware.CORSConfig{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	AllowedHeaders: []string{"Content-Type", "X-Requested-With", middleware.RequestIDHeader},
}

// MakeHTTPHandleFunc runs f on the request queue behind the CORS and access
// log middleware.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, mws ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)
		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		if err := s.requestQueueManager.EnqueueJob(r.Context(), job); err != nil {
			writeError(w, r, err)
			return
		}
		if err := <-errc; err != nil {
			writeError(w, r, err)
		}
	}

	return s.chain(baseHandler, mws)
}

// MakeStreamHandleFunc is MakeHTTPHandleFunc without the queue, for requests
// that hold their connection open such as long polls.
func (s *APIServer) MakeStreamHandleFunc(f apiFunc, mws ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			writeError(w, r, err)
		}
	}

	return s.chain(baseHandler, mws)
}

func (s *APIServer) chain(h http.HandlerFunc, extra []middleware.Middleware) http.HandlerFunc {
	middlewares := append([]middleware.Middleware{
		middleware.CORS(corsConfig),
		middleware.Logging(),
	}, extra...)
	return middleware.Chain(h, middlewares...)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := RelayError(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "status", httpErr.StatusCode, "error", httpErr.ErrorLog)
	} else {
		slog.Warn("request rejected", "path", r.URL.Path, "status", httpErr.StatusCode, "error", httpErr.ErrorLog)
	}
	WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
}
