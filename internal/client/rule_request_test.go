package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/client"
)

func TestNewRuleRequest_Encodes(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	req, err := client.NewRuleRequest(client.RuleSpec{
		Email:     "alice@example.com",
		Start:     "2024/03/01 08:00",
		End:       "2024/03/01 10:00",
		Until:     "2024/03/05 23:59",
		Frequency: "daily",
		Count:     4,
	}, ams)
	require.NoError(t, err)

	// 08:00 CET is 07:00 UTC.
	assert.Equal(t, float64(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC).Unix()), *req.StartDTStamp)
	assert.Equal(t, float64(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Unix()), *req.EndDTStamp)
	require.NotNil(t, req.RRuleStr)
	assert.Equal(t, "FREQ=DAILY;COUNT=4;UNTIL=20240305T225900Z", *req.RRuleStr)
}

func TestNewRuleRequest_OneShotHasNullRRule(t *testing.T) {
	req, err := client.NewRuleRequest(client.RuleSpec{
		Email: "alice@example.com",
		Start: "2024/03/01 08:00",
		End:   "2024/03/01 10:00",
	}, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, req.RRuleStr)
}

func TestNewRuleRequest_Rejects(t *testing.T) {
	base := client.RuleSpec{Email: "alice@example.com", Start: "2024/03/01 08:00", End: "2024/03/01 10:00"}

	cases := map[string]func(s *client.RuleSpec){
		"count without frequency": func(s *client.RuleSpec) { s.Count = 3 },
		"until without frequency": func(s *client.RuleSpec) { s.Until = "2024/04/01 00:00" },
		"unknown frequency":       func(s *client.RuleSpec) { s.Frequency = "fortnightly" },
		"bad start":               func(s *client.RuleSpec) { s.Start = "2024-03-01T08:00" },
		"bad until":               func(s *client.RuleSpec) { s.Frequency = "daily"; s.Until = "soon" },
		"negative count":          func(s *client.RuleSpec) { s.Frequency = "daily"; s.Count = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := base
			mutate(&spec)
			_, err := client.NewRuleRequest(spec, time.UTC)
			require.Error(t, err)
		})
	}
}
