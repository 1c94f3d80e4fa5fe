package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/glykeria-rk/thesisadmincli/internal/client"
	"github.com/glykeria-rk/thesisadmincli/internal/httpapi"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/service"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store/memory"
)

const alice = "alice@example.com"

func newClient(t *testing.T) *client.Client {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := memory.New()
	locks := service.NewKeyLock()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   logger,
		Rules:    service.NewRuleService(st, locks),
		Registry: service.NewIdentityRegistry(st, locks),
		Verifier: service.NewVerificationService(st, locks),
		Audit:    service.NewAuditTrail(st),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := client.New(ts.URL, ts.Client())
	require.NoError(t, err)
	return c
}

func TestClient_AgainstServer(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateUser(ctx, alice))
	require.NoError(t, c.AssignRFID(ctx, alice, "AABBCCDD"))

	req, err := client.NewRuleRequest(client.RuleSpec{
		Email:     alice,
		Start:     "2024/01/01 09:00",
		End:       "2024/01/01 10:00",
		Frequency: "weekly",
		Count:     3,
	}, time.UTC)
	require.NoError(t, err)

	added, err := c.AddRule(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, added.Index)

	rules, err := c.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules.AccessRules, 1)
	assert.Equal(t, "2024-01-01T09:00:00Z", rules.AccessRules[0].StartDT)
	require.NotNil(t, rules.AccessRules[0].Count)
	assert.Equal(t, 3, *rules.AccessRules[0].Count)

	require.NoError(t, c.GrantUnconditional(ctx, alice))
	v, err := c.Verify(ctx, "AABBCCDD")
	require.NoError(t, err)
	assert.True(t, v.Granted)

	require.NoError(t, c.DenyUnconditional(ctx, alice))
	v, err = c.Verify(ctx, "AABBCCDD")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "access denied", apiErr.Message)
	assert.Equal(t, "DENIED", v.Decision)

	require.NoError(t, c.UseRules(ctx, alice))
	require.NoError(t, c.RemoveRule(ctx, alice, 0))

	err = c.RemoveRule(ctx, alice, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "RULES", users[0].AccessStatus)

	logs, err := c.Log(ctx, client.LogFilter{User: alice, Category: "DENIED"})
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)

	require.NoError(t, c.RemoveRFID(ctx, alice))
	require.NoError(t, c.RemoveUser(ctx, alice))
}

func TestClient_ErrorMessageFields(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"message": {`{"message": "no such user"}`, "no such user"},
		"msg":     {`{"msg": "Missing Authorization Header"}`, "Missing Authorization Header"},
		"garbage": {`<html>oops</html>`, "An unknown error occurred: 418"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			c, err := client.New(ts.URL, nil)
			require.NoError(t, err)

			err = c.CreateUser(context.Background(), alice)
			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := client.New("ftp://example.com", nil)
	require.Error(t, err)
	_, err = client.New("://", nil)
	require.Error(t, err)
}
