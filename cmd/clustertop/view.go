package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"golang.org/x/exp/slices"
)

var (
	colorGreen = lipgloss.Color("#10b981")
	colorAmber = lipgloss.Color("#f59e0b")
	colorRed   = lipgloss.Color("#ef4444")
	colorGray  = lipgloss.Color("#6b7280")
	colorWhite = lipgloss.Color("#f8fafc")
	colorDark  = lipgloss.Color("#1e293b")
)

var (
	styleHeader = lipgloss.NewStyle().Background(colorDark).Foreground(colorWhite).Padding(0, 1)
	styleDim    = lipgloss.NewStyle().Foreground(colorGray)
	styleError  = lipgloss.NewStyle().Foreground(colorRed)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "ONLINE", "healthy":
		return lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	case "ERROR", "degraded":
		return lipgloss.NewStyle().Bold(true).Foreground(colorAmber)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	}
}

var nodeColumns = []string{"NODE", "NAME", "STATUS", "REQUESTS", "ERRORS", "AVG MS", "MODELS"}

// View implements tea.Model.
func (app *App) View() string {
	parts := []string{app.renderHeader()}
	if app.health != nil {
		parts = append(parts, app.renderNodes())
	}
	parts = append(parts, app.renderFooter())
	return strings.Join(parts, "\n")
}

func (app *App) renderHeader() string {
	status := "connecting"
	if app.health != nil {
		status = app.health.Status
	}
	line := fmt.Sprintf("clustertop  %s  %s", app.baseURL, statusStyle(status).Render(status))
	if h := app.health; h != nil {
		line += fmt.Sprintf("  %d/%d online  req %d  err %d  up %s",
			h.Totals.Online, h.Totals.Nodes, h.Totals.Requests, h.Totals.Errors, h.Uptime)
	}
	return styleHeader.Render(line)
}

// renderNodes lists nodes sorted by ID; the /health body is keyed by ID.
func (app *App) renderNodes() string {
	ids := make([]string, 0, len(app.health.Nodes))
	for id := range app.health.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if len(ids) == 0 {
		return styleDim.Render("  (no nodes)")
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		n := app.health.Nodes[id]
		rows = append(rows, []string{
			id,
			n.Name,
			n.Status,
			fmt.Sprintf("%d", n.Requests),
			fmt.Sprintf("%d", n.Errors),
			fmt.Sprintf("%.1f", n.AvgResponseTime),
			strings.Join(n.Models, ","),
		})
	}

	t := ltable.New().
		Headers(nodeColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(colorGray).Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(rows) {
				return statusStyle(rows[row][2]).Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
		}).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderColumn(false)
	if app.width > 0 {
		t = t.Width(app.width)
	}
	return t.Render()
}

func (app *App) renderFooter() string {
	help := styleDim.Render("q: quit  r: refresh")
	switch {
	case app.lastError != nil:
		return styleError.Render(fmt.Sprintf("poll failed (%d): %v", app.consecutiveFails, app.lastError)) + "  " + help
	case !app.lastUpdated.IsZero():
		return styleDim.Render("updated "+app.lastUpdated.Format(time.TimeOnly)) + "  " + help
	}
	return help
}
