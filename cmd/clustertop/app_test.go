package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/llmbalancer/internal/gateway"
)

func fixtureHealth() gateway.HealthResponse {
	return gateway.HealthResponse{
		Status: "healthy",
		Uptime: "1m0s",
		Nodes: map[string]gateway.NodeHealth{
			"b": {Name: "Beta", Status: "OFFLINE", Models: []string{}},
			"a": {Name: "Alpha", Status: "ONLINE", Requests: 12, Errors: 1, AvgResponseTime: 41.5, Models: []string{"llama3:8b", "phi3"}},
		},
		Totals: gateway.ClusterTotals{Requests: 12, Errors: 1, Online: 1, Nodes: 2},
	}
}

func TestApp_HealthMsgUpdatesState(t *testing.T) {
	app := NewApp("http://lb:8000", 5*time.Second)
	app.consecutiveFails = 3
	app.lastError = errors.New("boom")

	now := time.Now()
	m, cmd := app.Update(HealthMsg{Health: fixtureHealth(), FetchedAt: now})
	updated := m.(*App)

	require.NotNil(t, updated.health)
	assert.Equal(t, "healthy", updated.health.Status)
	assert.False(t, updated.fetching)
	assert.Zero(t, updated.consecutiveFails)
	assert.Nil(t, updated.lastError)
	assert.Equal(t, now, updated.lastUpdated)
	assert.NotNil(t, cmd, "next tick is scheduled")
}

func TestApp_FetchErrorKeepsLastHealth(t *testing.T) {
	app := NewApp("http://lb:8000", 5*time.Second)
	app.Update(HealthMsg{Health: fixtureHealth(), FetchedAt: time.Now()})

	m, cmd := app.Update(FetchErrorMsg{Err: errors.New("connection refused")})
	updated := m.(*App)

	assert.Equal(t, 1, updated.consecutiveFails)
	assert.EqualError(t, updated.lastError, "connection refused")
	assert.NotNil(t, updated.health)
	assert.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "connection refused")
}

func TestApp_TickSkippedWhileFetching(t *testing.T) {
	app := NewApp("http://lb:8000", 5*time.Second)
	require.True(t, app.fetching)

	_, cmd := app.Update(TickMsg(time.Now()))
	assert.Nil(t, cmd)

	app.fetching = false
	_, cmd = app.Update(TickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.True(t, app.fetching)
}

func TestApp_Keys(t *testing.T) {
	app := NewApp("http://lb:8000", 5*time.Second)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	app.fetching = false
	_, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.NotNil(t, cmd)
	assert.True(t, app.fetching)
}

func TestFetchCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"degraded","nodes":{"a":{"name":"A","status":"ERROR","models":[]}},"totals":{"nodes":1}}`))
	}))
	defer srv.Close()

	msg := NewApp(srv.URL, time.Second).fetchCmd()()
	hm, ok := msg.(HealthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "degraded", hm.Health.Status)
	assert.Equal(t, "ERROR", hm.Health.Nodes["a"].Status)
}

func TestFetchCmdError(t *testing.T) {
	app := NewApp("http://lb:8000", time.Second)
	app.fetch = func(ctx context.Context, url string, out any) error {
		assert.Equal(t, "http://lb:8000/health", url)
		return errors.New("unreachable")
	}
	msg := app.fetchCmd()()
	assert.Equal(t, FetchErrorMsg{Err: errors.New("unreachable")}, msg)
}

func TestView(t *testing.T) {
	app := NewApp("http://lb:8000", 5*time.Second)
	assert.Contains(t, app.View(), "connecting")

	app.Update(HealthMsg{Health: fixtureHealth(), FetchedAt: time.Now()})
	out := app.View()
	assert.Contains(t, out, "1/2 online")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "llama3:8b,phi3")
	assert.Less(t, strings.Index(out, "Alpha"), strings.Index(out, "Beta"))
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, time.Second, backoffDuration(0))
	assert.Equal(t, 2*time.Second, backoffDuration(1))
	assert.Equal(t, 16*time.Second, backoffDuration(4))
	assert.Equal(t, 30*time.Second, backoffDuration(5))
	assert.Equal(t, 30*time.Second, backoffDuration(50))
}

func TestParseBaseURL(t *testing.T) {
	got, err := parseBaseURL("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", got)

	for _, bad := range []string{"ftp://x", "http://", "::"} {
		_, err := parseBaseURL(bad)
		assert.Error(t, err, bad)
	}
}
