package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iotview/internal/auth"
	"iotview/internal/device"
	"iotview/internal/dispatch"
)

type rawCommandRequest struct {
	ActuatorID string `json:"actuator_id"`
	RawCommand string `json:"raw_command"`
}

type semanticCommandRequest struct {
	ActuatorID string `json:"actuator_id"`
	Command    string `json:"command"`
}

// handleRawCommand dispatches a wire-level ON/OFF command.
func (s *Server) handleRawCommand(w http.ResponseWriter, r *http.Request) {
	var req rawCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActuatorID == "" {
		writeError(w, http.StatusBadRequest, "actuator_id is required")
		return
	}

	cmd, err := dispatch.ParseRaw(req.RawCommand)
	if err != nil {
		writeError(w, http.StatusBadRequest, "raw_command must be ON or OFF")
		return
	}

	s.dispatchAndRespond(w, r, req.ActuatorID, cmd)
}

// handleSemanticCommand dispatches an operator-level ligar/desligar
// command, mapped to the wire vocabulary.
func (s *Server) handleSemanticCommand(w http.ResponseWriter, r *http.Request) {
	var req semanticCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActuatorID == "" {
		writeError(w, http.StatusBadRequest, "actuator_id is required")
		return
	}

	cmd, err := dispatch.ParseSemantic(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, "command must be ligar or desligar")
		return
	}

	s.dispatchAndRespond(w, r, req.ActuatorID, cmd)
}

// handleToggle flips an actuator's state.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newState, err := s.dispatcher.Toggle(s.username(r), id)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"new_state":   newState.Display(),
		"actuator_id": id,
	})
}

func (s *Server) dispatchAndRespond(w http.ResponseWriter, r *http.Request, actuatorID string, cmd dispatch.Command) {
	newState, err := s.dispatcher.Dispatch(s.username(r), actuatorID, cmd)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"new_state":   newState.Display(),
		"actuator_id": actuatorID,
	})
}

// username resolves the acting operator for the command history.
func (s *Server) username(r *http.Request) string {
	if user := auth.GetUserFromContext(r.Context()); user != nil {
		return user.Username
	}
	return "unknown"
}

// writeDispatchError maps dispatcher errors to HTTP status codes. An
// actuator without a command topic reads as not-found to the caller,
// matching the dashboard contract.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, "invalid command")
	case errors.Is(err, dispatch.ErrActuatorNotFound), errors.Is(err, dispatch.ErrNoCommandTopic):
		writeError(w, http.StatusNotFound, "actuator not found")
	case errors.Is(err, device.ErrNotFound):
		writeError(w, http.StatusNotFound, "actuator not found")
	default:
		if s.logger != nil {
			s.logger.Printf("[API] Dispatch error: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
