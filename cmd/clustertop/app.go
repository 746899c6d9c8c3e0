package main

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/gateway"
)

// HealthMsg delivers a successful poll.
type HealthMsg struct {
	Health    gateway.HealthResponse
	FetchedAt time.Time
}

// FetchErrorMsg signals a poll failure.
type FetchErrorMsg struct{ Err error }

// TickMsg triggers the next scheduled poll.
type TickMsg time.Time

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh now"),
	),
}

// App is the root Bubble Tea model.
type App struct {
	baseURL      string
	pollInterval time.Duration
	fetch        func(ctx context.Context, url string, out any) error

	fetching         bool
	health           *gateway.HealthResponse
	lastUpdated      time.Time
	consecutiveFails int
	lastError        error

	width int
}

// NewApp polls baseURL every interval.
func NewApp(baseURL string, interval time.Duration) *App {
	return &App{
		baseURL:      baseURL,
		pollInterval: interval,
		fetch:        cluster.GetJSON,
		fetching:     true, // Init issues the first fetch
	}
}

// Init implements tea.Model.
func (app *App) Init() tea.Cmd {
	return app.fetchCmd()
}

// Update implements tea.Model.
func (app *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		app.width = msg.Width

	case HealthMsg:
		app.fetching = false
		app.health = &msg.Health
		app.lastUpdated = msg.FetchedAt
		app.consecutiveFails = 0
		app.lastError = nil
		return app, tickCmd(app.pollInterval)

	case FetchErrorMsg:
		app.fetching = false
		app.consecutiveFails++
		app.lastError = msg.Err
		return app, tickCmd(backoffDuration(app.consecutiveFails))

	case TickMsg:
		if app.fetching {
			return app, nil
		}
		app.fetching = true
		return app, app.fetchCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return app, tea.Quit
		case key.Matches(msg, keys.Refresh):
			if app.fetching {
				return app, nil
			}
			app.fetching = true
			return app, app.fetchCmd()
		}
	}
	return app, nil
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (app *App) fetchCmd() tea.Cmd {
	fetch, url, interval := app.fetch, app.baseURL+"/health", app.pollInterval
	return func() tea.Msg {
		timeout := interval
		if timeout < time.Second {
			timeout = time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var h gateway.HealthResponse
		if err := fetch(ctx, url, &h); err != nil {
			return FetchErrorMsg{Err: err}
		}
		return HealthMsg{Health: h, FetchedAt: time.Now()}
	}
}

// backoffDuration returns min(2^fails seconds, 30s).
func backoffDuration(fails int) time.Duration {
	const maxBackoff = 30 * time.Second
	if fails <= 0 {
		return time.Second
	}
	if fails >= 5 {
		return maxBackoff
	}
	return time.Duration(1<<fails) * time.Second
}
