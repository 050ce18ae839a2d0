package router

import (
	"net/http"
	"strings"

	"code-relay-backend/internal/api"
	"code-relay-backend/internal/api/endpoints"
)

func RelayRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		relayEndpoints := endpoints.NewRelayEndpoints(s.Handler())

		mux.HandleFunc(base+"/relay/ws", s.MakeHTTPHandleFunc(relayEndpoints.Websocket))
		mux.HandleFunc(base+"/relay/poll", s.MakeStreamHandleFunc(relayEndpoints.Poll))
		mux.HandleFunc(base+"/api/rooms", s.MakeHTTPHandleFunc(relayEndpoints.Rooms))
	}
}
