package http

import (
	"net/http"

	"tally/internal/log"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// handleLogin checks credentials and returns the session. The HTTP API is
// stateless: clients send the returned id as X-User-ID afterwards.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentSession).InfoContext(r.Context(), "User logged in",
		log.FieldUserID, sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sess, err := s.auth.Signup(r.Context(), req.Email, req.Password, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, log.OpSignup, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentSession).InfoContext(r.Context(), "User signed up",
		log.FieldUserID, sess.ID)
	writeJSON(w, http.StatusCreated, sess)
}
