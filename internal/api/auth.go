package api

import (
	"net/http"

	"iotview/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates an operator and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("[API] Failed login for %q", req.Username)
		}
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := s.jwtManager.GenerateToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	auth.SetAuthCookie(w, r, token, 0)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"user":   user,
	})
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleMe returns the authenticated operator.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
