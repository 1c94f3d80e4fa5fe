package httpapi

import (
	"math"
	"time"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/service"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

// stampToTime converts fractional Unix seconds, keeping microseconds.
func stampToTime(stamp float64, loc *time.Location) time.Time {
	sec, frac := math.Modf(stamp)
	us := math.Round(frac * 1e6)
	return time.Unix(int64(sec), int64(us)*int64(time.Microsecond)).In(loc)
}

func ruleView(index int, r model.AccessRule) types.AccessRuleView {
	v := types.AccessRuleView{
		Index:   index,
		ID:      r.ID.String(),
		StartDT: r.Rule.Start.Format(time.RFC3339Nano),
		EndDT:   r.Rule.End.Format(time.RFC3339Nano),
	}
	if rec := r.Rule.Recurrence; rec != nil {
		f := string(rec.Frequency)
		v.Frequency = &f
		if rec.Until != nil {
			u := rec.Until.Format(time.RFC3339Nano)
			v.Until = &u
		}
		if rec.Count > 0 {
			c := rec.Count
			v.Count = &c
		}
	}
	return v
}

func userView(id model.Identity) types.UserView {
	v := types.UserView{
		EmailAddress: id.Key,
		AccessStatus: string(id.Mode),
	}
	if id.RFID != "" {
		rfid := id.RFID
		v.RFIDID = &rfid
	}
	return v
}

func logView(e model.AuditEntry) types.LogEntryView {
	return types.LogEntryView{
		Datetime: e.Timestamp.Format(time.RFC3339),
		User:     e.IdentityKey,
		Method:   string(e.Method),
		Category: string(e.Category),
	}
}

var decisionMessages = map[model.Decision]string{
	model.Granted:  "access granted",
	model.Denied:   "access denied",
	model.NotFound: "unknown rfid id",
}

func verifyResponse(v service.Verdict, loc *time.Location) types.VerifyResponse {
	return types.VerifyResponse{
		RFIDID:     v.RFID,
		Decision:   string(v.Decision),
		Granted:    v.Granted(),
		Message:    decisionMessages[v.Decision],
		ServerTime: v.At.In(loc).Format(time.RFC3339Nano),
	}
}
