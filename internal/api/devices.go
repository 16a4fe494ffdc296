package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iotview/internal/device"
)

// historyLimit caps the command history slice in dashboard payloads.
const historyLimit = 10

// handleDeviceData returns the full live snapshot plus recent commands.
func (s *Server) handleDeviceData(w http.ResponseWriter, r *http.Request) {
	sensors, actuators := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensors":         sensors,
		"actuators":       actuators,
		"command_history": s.history.Tail(historyLimit),
	})
}

type sensorRequest struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
	Unit  string `json:"data_type"`
}

type actuatorRequest struct {
	Name         string `json:"name"`
	CommandTopic string `json:"command_topic"`
	StatusTopic  string `json:"status_topic"`
}

// handleCreateSensor registers a sensor and subscribes its topic.
func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var req sensorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sn, err := s.registry.RegisterSensor(req.Name, req.Topic, req.Unit)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

// handleUpdateSensor edits a sensor, resubscribing on topic change.
func (s *Server) handleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	var req sensorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sn, err := s.registry.UpdateSensor(chi.URLParam(r, "id"), req.Name, req.Topic, req.Unit)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// handleDeleteSensor removes a sensor and unsubscribes its topic.
func (s *Server) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteSensor(chi.URLParam(r, "id")); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleCreateActuator registers an actuator.
func (s *Server) handleCreateActuator(w http.ResponseWriter, r *http.Request) {
	var req actuatorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := s.registry.RegisterActuator(req.Name, req.CommandTopic, req.StatusTopic)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleUpdateActuator edits an actuator.
func (s *Server) handleUpdateActuator(w http.ResponseWriter, r *http.Request) {
	var req actuatorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := s.registry.UpdateActuator(chi.URLParam(r, "id"), req.Name, req.CommandTopic, req.StatusTopic)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleDeleteActuator removes an actuator.
func (s *Server) handleDeleteActuator(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteActuator(chi.URLParam(r, "id")); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeRegistryError maps registry errors to HTTP status codes.
func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, device.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, device.ErrTopicConflict):
		writeError(w, http.StatusConflict, "topic already bound to another device")
	case errors.Is(err, device.ErrProtected):
		writeError(w, http.StatusForbidden, "default devices cannot be deleted")
	default:
		if s.logger != nil {
			s.logger.Printf("[API] Registry error: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
