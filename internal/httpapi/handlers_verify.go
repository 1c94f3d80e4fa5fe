package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

var decisionStatus = map[model.Decision]int{
	model.Granted:  http.StatusOK,
	model.Denied:   http.StatusForbidden,
	model.NotFound: http.StatusNotFound,
}

// handleVerify accepts JSON or, from readers, a protobuf StringValue holding
// the RFID id. The response uses the request's encoding.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	pb := isProtobuf(r)

	var rfid string
	if pb {
		var msg wrapperspb.StringValue
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid protobuf body")
			return
		}
		rfid = msg.GetValue()
	} else {
		var req types.VerifyRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		rfid = req.RFIDID
	}

	v, err := s.verifier.Verify(r.Context(), rfid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := verifyResponse(v, s.loc)
	status := decisionStatus[v.Decision]
	if pb {
		writeProto(w, status, verifyResponseToProto(resp))
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	f, err := s.auditFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entries, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := types.LogResponse{Logs: make([]types.LogEntryView, 0, len(entries))}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, logView(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) auditFilter(r *http.Request) (model.AuditFilter, error) {
	q := r.URL.Query()
	f := model.AuditFilter{IdentityKey: q.Get("user")}

	if c := q.Get("category"); c != "" {
		switch cat := model.Category(c); cat {
		case model.CategoryGranted, model.CategoryDenied, model.CategoryNotFound, model.CategoryAdminChange:
			f.Category = cat
		default:
			return f, errs.Validationf("unknown category %q", c)
		}
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errs.Validationf("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errs.Validationf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}
