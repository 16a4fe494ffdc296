package api

import "net/http"

type settingsResponse struct {
	Addr        string `json:"addr"`
	MQTTBroker  string `json:"mqtt_broker"`
	NoAuth      bool   `json:"no_auth"`
	HistorySize int    `json:"history_size"`
}

type settingsRequest struct {
	Addr       *string `json:"addr"`
	MQTTBroker *string `json:"mqtt_broker"`
	NoAuth     *bool   `json:"no_auth"`
}

// handleGetSettings returns the current runtime configuration.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		Addr:        s.config.Addr(),
		MQTTBroker:  s.config.MQTTBroker(),
		NoAuth:      s.config.NoAuth(),
		HistorySize: s.config.HistorySize(),
	})
}

// handleUpdateSettings persists configuration changes to the env file.
// Address and broker changes take effect on the next restart; the
// response says so explicitly.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Addr != nil {
		if err := s.config.SetAddr(*req.Addr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.MQTTBroker != nil {
		if err := s.config.SetMQTTBroker(*req.MQTTBroker); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.NoAuth != nil {
		if err := s.config.SetNoAuth(*req.NoAuth); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save configuration")
			return
		}
	}

	if s.logger != nil {
		s.logger.Printf("[API] Settings updated")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"restart_required": true,
	})
}
