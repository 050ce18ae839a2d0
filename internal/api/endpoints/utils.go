package endpoints

import (
	"net/http"

	"code-relay-backend/internal/api"
)

type HTTPError = api.HTTPError

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return api.MethodNotAllowed(r.Method)
}
