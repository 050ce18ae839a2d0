package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"code-relay-backend/internal/api"
	"code-relay-backend/internal/websocket"
)

type RelayEndpoints interface {
	Websocket(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
	Poll(http.ResponseWriter, *http.Request) error
}

type OpenPollRes struct {
	SID websocket.ConnectionID `json:"sid"`
}

type PollRes struct {
	Frames []json.RawMessage `json:"frames"`
}

type relayEndpoints struct {
	handler *websocket.Handler
}

func NewRelayEndpoints(handler *websocket.Handler) RelayEndpoints {
	return &relayEndpoints{handler: handler}
}

func (h *relayEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleUpgrade,
	})
}

// The upgrader answers failed handshakes itself, so errors are only logged.
func (h *relayEndpoints) handleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if err := h.handler.ServeWS(w, r); err != nil {
		slog.Warn("websocket connect failed", "remote", r.RemoteAddr, "error", err)
	}
	return nil
}

func (h *relayEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleRooms,
	})
}

func (h *relayEndpoints) handleRooms(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.handler.Hub().Stats(r.Context())
	if err != nil {
		return api.RelayError(err)
	}
	return WriteJSON(w, http.StatusOK, stats)
}

func (h *relayEndpoints) Poll(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:    h.handlePoll,
		http.MethodPost:   h.handlePollPost,
		http.MethodDelete: h.handlePollClose,
	})
}

func sessionID(r *http.Request) (websocket.ConnectionID, error) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		return "", &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Missing sid",
			ErrorLog:   fmt.Errorf("poll request without sid"),
		}
	}
	return websocket.ConnectionID(sid), nil
}

func (h *relayEndpoints) handlePoll(w http.ResponseWriter, r *http.Request) error {
	sid, err := sessionID(r)
	if err != nil {
		return err
	}

	frames, err := h.handler.Polls().Poll(r.Context(), sid)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return nil
		}
		return api.RelayError(err)
	}
	return WriteJSON(w, http.StatusOK, PollRes{Frames: frames})
}

// POST without sid opens a session, with sid it carries one envelope.
func (h *relayEndpoints) handlePollPost(w http.ResponseWriter, r *http.Request) error {
	if r.URL.Query().Get("sid") == "" {
		id, err := h.handler.Polls().Open(r.Context())
		if err != nil {
			return api.RelayError(err)
		}
		return WriteJSON(w, http.StatusOK, OpenPollRes{SID: id})
	}

	sid, err := sessionID(r)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.handler.MaxMessageBytes()))
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusRequestEntityTooLarge,
			Message:    "Frame too large",
			ErrorLog:   fmt.Errorf("read poll frame: %w", err),
		}
	}

	if err := h.handler.Polls().Push(r.Context(), sid, body); err != nil {
		return api.RelayError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *relayEndpoints) handlePollClose(w http.ResponseWriter, r *http.Request) error {
	sid, err := sessionID(r)
	if err != nil {
		return err
	}
	if err := h.handler.Polls().Close(sid); err != nil {
		return api.RelayError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
