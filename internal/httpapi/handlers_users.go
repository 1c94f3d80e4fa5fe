package httpapi

import (
	"net/http"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]types.UserView, 0, len(ids))
	for _, id := range ids {
		out = append(out, userView(id))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id, err := s.registry.Get(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(id))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.registry.Create(r.Context(), req.EmailAddress); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "user created")
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.registry.Delete(r.Context(), email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "user removed")
}

func (s *Server) handleAssignRFID(w http.ResponseWriter, r *http.Request) {
	var req types.AssignRFIDRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.registry.AssignRFID(r.Context(), req.EmailAddress, req.RFIDID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "rfid id assigned")
}

func (s *Server) handleRemoveRFID(w http.ResponseWriter, r *http.Request) {
	var req types.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.registry.RemoveRFID(r.Context(), req.EmailAddress); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "rfid id removed")
}
