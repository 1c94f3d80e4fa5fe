package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

func emailParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: invalid email address in path", errs.ErrValidation)
	}
	return email, nil
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req types.AddAccessRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.EmailAddress != "" && !strings.EqualFold(req.EmailAddress, email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "email_address does not match the path")
		return
	}

	var rec *schedule.Recurrence
	if req.RRuleStr != nil {
		rec, err = schedule.ParseRRule(*req.RRuleStr, s.loc)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	start := stampToTime(*req.StartDTStamp, s.loc)
	end := stampToTime(*req.EndDTStamp, s.loc)

	index, err := s.rules.AddRule(r.Context(), email, start, end, rec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.AddAccessRuleResponse{
		Message: fmt.Sprintf("access rule %d added", index),
		Index:   index,
	})
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "index must be an integer")
		return
	}

	if err := s.rules.RemoveRule(r.Context(), email, index); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, fmt.Sprintf("access rule %d removed", index))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rules, err := s.rules.ListRules(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := types.AccessRulesResponse{
		EmailAddress: email,
		AccessRules:  make([]types.AccessRuleView, 0, len(rules)),
	}
	for i, rule := range rules {
		v := ruleView(i, rule)
		if next, ok := s.rules.NextWindow(rule); ok {
			start, end := next.Start.Format(time.RFC3339Nano), next.End.Format(time.RFC3339Nano)
			v.NextStart, v.NextEnd = &start, &end
		}
		resp.AccessRules = append(resp.AccessRules, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req types.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.rules.GrantUnconditional(r.Context(), req.EmailAddress); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "unconditional access granted")
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	var req types.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.rules.DenyUnconditional(r.Context(), req.EmailAddress); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "unconditional access denied")
}

func (s *Server) handleUseRules(w http.ResponseWriter, r *http.Request) {
	var req types.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.rules.UseRules(r.Context(), req.EmailAddress); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "access rules in effect")
}
