package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/provdash/pkg/core"
	"github.com/modoterra/provdash/pkg/dashboard"
	"github.com/modoterra/provdash/pkg/route"
	"github.com/modoterra/provdash/pkg/table"
)

const (
	maxColumnWidth = 32
	streamQueue    = 256
	chromeHeight   = 6 // tabs, status line, help
)

var (
	lipglossTitle = lipgloss.Color("205")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipglossTitle)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusPending = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	cardStyle = paneStyle.
			BorderForeground(lipgloss.Color("57")).
			Width(18).
			Align(lipgloss.Center)

	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	activeTabStyle = tabStyle.Foreground(lipglossTitle).Bold(true).Underline(true)

	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// layout sizes the table and log viewport to the window.
func (a *App) layout() {
	bodyH := max(a.height-chromeHeight, 3)
	a.grid.SetHeight(min(bodyH-2, a.opts.PageSize+1))
	a.grid.SetWidth(max(a.width-2, 20))
	a.logView.Width = max(a.width-4, 20)
	a.logView.Height = max(bodyH-3, 3)
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	var body string
	switch a.route {
	case route.Login:
		return a.renderLogin()
	case route.Dashboard:
		body = a.renderDashboard()
	case route.Interfaces:
		body = a.renderInterfaces()
	case route.Logs:
		body = a.renderLogs()
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.renderTabs(), body, a.renderStatusBar())
}

func (a App) renderTabs() string {
	tabs := make([]string, 0, len(route.Protected))
	for i, r := range route.Protected {
		label := fmt.Sprintf("%d %s", i+1, capitalize(r.String()))
		if r == a.route {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return titleStyle.Render(" provdash ") + lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n"
}

func (a App) renderLogin() string {
	form := a.login
	if form == nil {
		form = newLoginForm()
	}
	content := form.View()
	if a.loggingIn {
		content += "\n" + a.spinner.View() + " signing in..."
	}
	if a.statusMsg != "" {
		content += "\n" + statusLine(a.statusMsg)
	}
	content += "\n" + helpStyle.Render("tab:next field  enter:sign in  esc:quit")
	box := paneStyle.Width(min(56, a.width-4)).Render(content)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}

func (a App) renderDashboard() string {
	switch {
	case a.statsErr != nil:
		return errorStyle.Render("error") + " " + dimStyle.Render(errText(a.statsErr)) + "\n" +
			dimStyle.Render("press r to retry")
	case a.stats == nil && a.statsLoading:
		return a.spinner.View() + " loading stats..."
	case len(a.stats) == 0:
		return dimStyle.Render("no data for this period")
	}

	cards := make([]string, 0, len(a.stats)+1)
	cards = append(cards, renderCard("TOTAL", dashboard.Total(a.stats)))
	for _, s := range a.stats {
		cards = append(cards, renderCard(s.Label, s.Value))
	}

	var b strings.Builder
	b.WriteString(wrapCards(cards, a.width))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s\n", titleStyle.Render("by "+orDefault(a.opts.Stats.GroupBy, "status")))
	b.WriteString(dashboard.FormatBars(a.stats, max(a.width/2, 10), barStyle))
	if !a.statsAt.IsZero() {
		b.WriteString(dimStyle.Render("updated " + a.statsAt.Format("15:04:05")))
	}
	return b.String()
}

func renderCard(label string, value int64) string {
	return cardStyle.Render(colorStatus(label) + "\n" + titleStyle.Render(fmt.Sprint(value)))
}

// wrapCards lays cards out in rows that fit width.
func wrapCards(cards []string, width int) string {
	var rows []string
	var row []string
	rowW := 0
	for _, c := range cards {
		w := lipgloss.Width(c)
		if len(row) > 0 && rowW+w > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowW = nil, 0
		}
		row = append(row, c)
		rowW += w
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a App) renderInterfaces() string {
	var b strings.Builder
	b.WriteString(a.renderFilterSummary() + "\n")

	if a.filter != nil {
		b.WriteString(paneStyle.Render(a.filter.View()+"\n"+helpStyle.Render("tab:next  enter:apply  esc:cancel")) + "\n")
	}

	switch {
	case a.pageErr != nil:
		b.WriteString(errorStyle.Render("error") + " " + dimStyle.Render(errText(a.pageErr)) + "\n")
		return b.String()
	case a.pageLoading && len(a.page.Items) == 0:
		b.WriteString(a.spinner.View() + " loading interfaces...\n")
		return b.String()
	case len(a.page.Items) == 0:
		b.WriteString(a.grid.View() + "\n" + dimStyle.Render("no interfaces match") + "\n")
		return b.String()
	}

	tableView := a.grid.View()
	if a.detailOpen {
		w := max(a.width/3, 30)
		detail := paneStyle.Width(w).Render(a.renderDetail())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tableView, " ", detail))
	} else {
		b.WriteString(tableView)
	}
	return b.String()
}

func (a App) renderFilterSummary() string {
	f := a.pager.Filters()
	parts := make([]string, 0, len(f))
	for _, name := range core.FilterNames {
		if v := f.Get(name); v != "" {
			parts = append(parts, name+"="+v)
		}
	}
	filters := dimStyle.Render("no filters")
	if len(parts) > 0 {
		filters = strings.Join(parts, " ")
	}

	c := a.pager.Cursor()
	nav := fmt.Sprintf("page %d", c.Page)
	if a.pager.HasPrev() {
		nav = "‹ " + nav
	}
	if a.pager.HasNext() {
		nav += " ›"
	}
	if a.page.HasTotal {
		nav += fmt.Sprintf(" of %d rows", a.page.Total)
	}
	if a.pageLoading {
		nav += " " + a.spinner.View()
	}
	return filters + "  " + dimStyle.Render("·") + "  " + nav
}

func (a App) renderDetail() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Interface ") + "\n")
	if a.detailErr != nil {
		b.WriteString(errorStyle.Render("error") + " " + errText(a.detailErr) + "\n")
	}
	if a.detail == nil {
		if a.detailLoading {
			b.WriteString(a.spinner.View() + " loading...")
		}
		return b.String()
	}

	rec := *a.detail
	labelW := 0
	for _, c := range table.InterfaceDetail {
		labelW = max(labelW, len(c.Header))
	}
	for _, c := range table.InterfaceDetail {
		v := rec.Field(c.Field)
		if v == "" {
			v = dimStyle.Render("-")
		} else if c.Field == core.FieldStatus {
			v = colorStatus(v)
		}
		fmt.Fprintf(&b, "%-*s  %s\n", labelW, c.Header, v)
	}
	if a.detailLoading {
		b.WriteString(a.spinner.View())
	}
	return b.String()
}

func (a App) renderLogs() string {
	title := " Logs " + dimStyle.Render("["+a.streamState.String()+"]")
	if a.logPaused {
		title += " " + dimStyle.Render("[PAUSED]")
	}
	if a.busy() {
		title += " " + a.spinner.View()
	}

	content := a.logView.View()
	if a.logBuf.Len() == 0 {
		content = dimStyle.Render("waiting for log lines...")
		if a.streamErr != nil {
			content = errorStyle.Render("error") + " " + dimStyle.Render(errText(a.streamErr))
		}
	}
	footer := dimStyle.Render(fmt.Sprintf("%d/%d lines", a.logBuf.Len(), a.logBuf.Cap()))
	return titleStyle.Render(title) + "\n" + content + "\n" + footer
}

func (a App) renderStatusBar() string {
	left := statusLine(a.statusMsg)
	return left + "\n" + helpStyle.Render(a.help.View(routeHelp{k: keys, route: a.route}))
}

func statusLine(msg string) string {
	if strings.HasPrefix(msg, "login failed") || strings.Contains(msg, "expired") || strings.Contains(msg, ": ") {
		return errorStyle.Render(msg)
	}
	return dimStyle.Render(msg)
}

func colorStatus(status string) string {
	switch strings.ToUpper(status) {
	case "ACTIVE", "OK", "SUCCESS", "DONE", "PROVISIONED":
		return statusOK.Render(status)
	case "FAILED", "ERROR", "REJECTED":
		return statusFailed.Render(status)
	case "PENDING", "IN_PROGRESS", "PROCESSING", "QUEUED":
		return statusPending.Render(status)
	default:
		return dimStyle.Render(status)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
