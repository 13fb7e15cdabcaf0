package ui

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-relay/backend/app/dto"
	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/session"
	"job-relay/backend/config"
	"job-relay/backend/initialize"
)

func startRelay(t *testing.T) (*initialize.App, *Session) {
	t.Helper()
	initialize.SetupLogger(io.Discard, "error", "json")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DB.Path = t.TempDir() + "/relay.db"
	cfg.Brain.Engine = "noop"
	cfg.Auth.BootstrapUser = "ops"
	cfg.Auth.BootstrapPassword = "pw"

	app, err := initialize.Build(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		srv.Close()
		app.Shutdown()
	})
	tok, err := app.Signer.Sign("console", jwtutil.RoleAdmin)
	require.NoError(t, err)
	return app, NewSession(srv.URL, tok)
}

func TestSession_AdminRoundTrip(t *testing.T) {
	app, s := startRelay(t)
	ctx := context.Background()

	resp, err := s.SendCommand(ctx, "dev", "NAVIGATE", "https://x/")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeQueued, resp.Outcome)

	devs, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, 1, devs[0].QueueLength)

	_, err = app.Relay.Poll(ctx, "dev")
	require.NoError(t, err)

	q, err := s.Queue(ctx, "dev", 10)
	require.NoError(t, err)
	require.NotNil(t, q.Pending)
	assert.Equal(t, resp.Command.ID, q.Pending.Command.ID)

	cl, err := s.ClearConfirmation(ctx, "dev")
	require.NoError(t, err)
	assert.True(t, cl.Cleared)

	logs, err := s.Logs(ctx, "dev", 5)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSession_BadToken(t *testing.T) {
	_, s := startRelay(t)
	s.Token = "nope"
	_, err := s.Devices(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogin(t *testing.T) {
	_, s := startRelay(t)
	ctx := context.Background()

	_, err := Login(ctx, s.Base, "ops", "nope")
	assert.ErrorIs(t, err, ErrUnauthorized)

	logged, err := Login(ctx, s.Base, "ops", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, logged.Token)
	devs, err := logged.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestDeviceRows(t *testing.T) {
	now := time.Now()
	rows := deviceRows([]dto.DeviceSummary{
		{DeviceID: "a", Online: true, QueueLength: 2, EventCount: 7, LastEvent: session.KindDOMSnapshot, LastSeen: now.Add(-3 * time.Second)},
		{DeviceID: "b", PendingURL: "https://x/", PendingFor: "5s"},
	}, now)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a", "yes", "2", "7", "dom_snapshot", "3s", ""}, []string(rows[0]))
	assert.Equal(t, "-", rows[1][1])
	assert.Equal(t, "never", rows[1][5])
	assert.Equal(t, "https://x/ (5s)", rows[1][6])
}

func TestHistoryRows(t *testing.T) {
	nav := session.Command{ID: "cmd-n", Action: "NAVIGATE", Value: "https://x/"}
	rows := historyRows(dto.QueueResponse{
		Pending: &session.Confirmation{Command: nav},
		Queued:  []session.Command{{ID: "cmd-s", Action: "SCROLL"}},
		History: []dto.CommandRecord{
			{CommandID: "cmd-s", Action: "SCROLL", Status: "queued"},
			{CommandID: "cmd-n", Action: "NAVIGATE", Status: "sent"},
			{CommandID: "cmd-o", Action: "CLICK", Status: "sent", Transport: "push"},
		},
	})
	require.Len(t, rows, 3)
	assert.Equal(t, "awaiting", rows[0][3])
	assert.Equal(t, "queued", rows[1][3])
	assert.Equal(t, "cmd-o", rows[2][0])
}

func TestBuildCommand(t *testing.T) {
	action, value, err := buildCommand(availableCommands[0], []string{" https://x/ "})
	require.NoError(t, err)
	assert.Equal(t, "NAVIGATE", action)
	assert.Equal(t, "https://x/", value)

	_, _, err = buildCommand(availableCommands[0], []string{""})
	assert.ErrorContains(t, err, "url is required")

	action, value, err = buildCommand(availableCommands[3], []string{"type", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "TYPE", action)
	assert.Equal(t, "hello", value)
}

func TestRoot_LoginFlow(t *testing.T) {
	m := NewRootModel("http://127.0.0.1:1", "", time.Second)
	assert.Equal(t, stateLogin, m.State)

	next, _ := m.Update(loginResultMsg{Err: errors.New("refused")})
	m = next.(RootModel)
	assert.Equal(t, stateLogin, m.State)
	assert.EqualError(t, m.Login.Err, "refused")

	next, cmd := m.Update(loginResultMsg{Session: NewSession("http://127.0.0.1:1", "t")})
	m = next.(RootModel)
	assert.Equal(t, stateDashboard, m.State)
	assert.NotNil(t, cmd)

	next, _ = m.Update(DeviceSelectedMsg{DeviceID: "dev"})
	m = next.(RootModel)
	assert.Equal(t, stateDeviceDetail, m.State)
	assert.Equal(t, "dev", m.Detail.DeviceID)

	next, _ = m.Update(BackToDashboardMsg{})
	m = next.(RootModel)
	assert.Equal(t, stateDashboard, m.State)

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, next.(RootModel).Quitting)
	assert.NotNil(t, cmd)
}
