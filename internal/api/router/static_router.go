package router

import (
	"net/http"

	"code-relay-backend/internal/api"
	"code-relay-backend/internal/api/endpoints"
)

// StaticRoutes serves every path no other route claims.
func StaticRoutes() api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		staticEndpoints := endpoints.NewStaticEndpoints(s.StaticDir())
		mux.HandleFunc("/", s.MakeHTTPHandleFunc(staticEndpoints.Serve))
	}
}
