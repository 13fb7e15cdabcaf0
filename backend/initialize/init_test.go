package initialize

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-relay/backend/app/dto"
	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/session"
	"job-relay/backend/config"
)

func newTestApp(t *testing.T, tweaks ...func(*config.Config)) (*App, *httptest.Server) {
	t.Helper()
	SetupLogger(io.Discard, "error", "json")

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DB.Path = filepath.Join(t.TempDir(), "relay.db")
	cfg.Brain.ScrollCount = 2
	cfg.Brain.ScrollInterval = 10 * time.Millisecond
	for _, tw := range tweaks {
		tw(cfg)
	}

	app, err := Build(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		srv.Close()
		app.Shutdown()
	})
	return app, srv
}

func postData(t *testing.T, base, kind, deviceID, data string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"type": kind, "deviceId": deviceID, "data": data})
	resp, err := http.Post(base+"/agent/data", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func poll(t *testing.T, base, deviceID string) []session.Command {
	t.Helper()
	resp, err := http.Get(base + "/agent/poll?deviceId=" + deviceID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cmds []session.Command
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cmds))
	require.NotNil(t, cmds, "poll must answer [] rather than null")
	return cmds
}

func TestRouter_NavigateThenScroll(t *testing.T) {
	_, srv := newTestApp(t)
	page := `<a href="https://www.linkedin.com/company/test-company">x</a>`

	resp := postData(t, srv.URL, "dom_snapshot", "dev", page)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	nav := poll(t, srv.URL, "dev")
	require.Len(t, nav, 1)
	assert.Equal(t, session.ActionNavigate, nav[0].Action)
	assert.Equal(t, "https://www.linkedin.com/company/test-company/", nav[0].Value)
	assert.Empty(t, poll(t, srv.URL, "dev"))

	postData(t, srv.URL, "navigation_complete", "dev", nav[0].Value)

	var scrolls []session.Command
	require.Eventually(t, func() bool {
		scrolls = append(scrolls, poll(t, srv.URL, "dev")...)
		return len(scrolls) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	for _, c := range scrolls {
		assert.Equal(t, session.ActionScroll, c.Action)
	}
}

func TestRouter_RejectsBadInput(t *testing.T) {
	_, srv := newTestApp(t)

	resp := postData(t, srv.URL, "hover", "dev", "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postData(t, srv.URL, "dom_snapshot", "", "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Get(srv.URL + "/agent/poll")
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	app, srv := newTestApp(t)

	r, err := http.Get(srv.URL + "/admin/devices")
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)

	viewer, err := app.Signer.Sign("bob", "viewer")
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/devices", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusForbidden, r.StatusCode)
}

func TestRouter_AdminCommandAndClear(t *testing.T) {
	app, srv := newTestApp(t)
	tok, err := app.Signer.Sign("ops", jwtutil.RoleAdmin)
	require.NoError(t, err)

	do := func(method, path string, body any) *http.Response {
		var rd io.Reader
		if body != nil {
			b, _ := json.Marshal(body)
			rd = bytes.NewReader(b)
		}
		req, _ := http.NewRequest(method, srv.URL+path, rd)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := do(http.MethodPost, "/admin/command", dto.CommandRequest{DeviceID: "dev", Action: "NAVIGATE", Value: "https://x/"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var cr dto.CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	assert.Equal(t, session.OutcomeQueued, cr.Outcome)

	require.Len(t, poll(t, srv.URL, "dev"), 1)

	resp = do(http.MethodGet, "/admin/devices/dev", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum dto.DeviceSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, "https://x/", sum.PendingURL)

	resp = do(http.MethodPost, "/admin/devices/dev/confirmation/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cl dto.ClearConfirmationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cl))
	assert.True(t, cl.Cleared)
	require.NotNil(t, cl.Command)
	assert.Equal(t, cr.Command.ID, cl.Command.ID)

	resp = do(http.MethodGet, "/admin/devices/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReconfigure_SwapsGate(t *testing.T) {
	app, _ := newTestApp(t)
	cfg := *app.Cfg
	cfg.Gate.Match = "exact"
	cfg.Log.Format = "json"
	cfg.Log.Level = "error"
	app.Reconfigure(&cfg)
	assert.Equal(t, session.MatchExact, app.Gate.Config().Match)
}

func login(t *testing.T, base, user, pass string) (*http.Response, dto.TokenResponse) {
	t.Helper()
	body, _ := json.Marshal(dto.LoginRequest{Username: user, Password: pass})
	resp, err := http.Post(base+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var tr dto.TokenResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	}
	return resp, tr
}

func TestRouter_OperatorLogin(t *testing.T) {
	_, srv := newTestApp(t, func(c *config.Config) {
		c.Auth.BootstrapUser = "root"
		c.Auth.BootstrapPassword = "hunter2"
	})

	resp, _ := login(t, srv.URL, "root", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = login(t, srv.URL, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, tok := login(t, srv.URL, "root", "hunter2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tok.AccessToken)

	body, _ := json.Marshal(dto.CreateOperatorRequest{Username: "eve", Password: "pw"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/operators", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusCreated, r.StatusCode)

	// new operators default to viewer, which the admin API refuses
	resp, viewer := login(t, srv.URL, "eve", "pw")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/admin/devices", nil)
	req.Header.Set("Authorization", "Bearer "+viewer.AccessToken)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusForbidden, r.StatusCode)
}

func TestRouter_NoLoginWithoutDB(t *testing.T) {
	_, srv := newTestApp(t, func(c *config.Config) { c.DB.Driver = "none" })
	resp, _ := login(t, srv.URL, "root", "x")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
