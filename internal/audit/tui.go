package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/qualify"
)

// Lines per role item in the list view (title + subtitle + blank separator).
const roleItemHeight = 3

// recentChangeLimit caps the change log shown in the detail view.
const recentChangeLimit = 20

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	roleTitleStyle = lipgloss.NewStyle().
			Bold(true)

	roleSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedRoleTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedRoleSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	driftStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// ChangeLoader returns the most recent change events of one role.
type ChangeLoader func(ctx context.Context, roleID int64, limit int) ([]model.RoleChange, error)

// auditEntry pairs a stored role with the verdict of the gate as currently
// configured, which may differ from the stored assessment.
type auditEntry struct {
	role    model.Role
	verdict qualify.Result
}

func (e auditEntry) drifted() bool {
	return e.verdict.Tier != e.role.Assessment.Tier
}

// changesLoadedMsg is sent when an async change-log fetch completes.
type changesLoadedMsg struct {
	roleID  int64
	changes []model.RoleChange
	err     error
}

type auditModel struct {
	surfaced      []auditEntry
	skipped       []auditEntry
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left, 1=right
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	location      *time.Location
	ready         bool

	// Detail view state
	view           viewState
	detail         auditEntry
	detailViewport viewport.Model
	changes        []model.RoleChange
	changesLoading bool
	changesError   string
	loadChanges    ChangeLoader

	wantQuit bool
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case changesLoadedMsg:
		if msg.roleID != m.detail.role.ID {
			return m, nil
		}
		m.changesLoading = false
		if msg.err != nil {
			m.changesError = fmt.Sprintf("failed to load changes: %v", msg.err)
		} else {
			m.changesError = ""
			m.changes = msg.changes
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m auditModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m auditModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *auditModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.surfaced)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.skipped)-1, 0))
	}
}

func (m *auditModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * roleItemHeight
	cursorBottom := cursorTop + roleItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m auditModel) openDetailView() (tea.Model, tea.Cmd) {
	entries := m.activeEntries()
	if len(entries) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detail = entries[m.activeCursor()]
	m.changes = nil
	m.changesError = ""
	m.detailViewport = viewport.New(m.width-4, m.height-4)

	var cmd tea.Cmd
	if m.loadChanges != nil {
		m.changesLoading = true
		cmd = m.loadChangesCmd(m.detail.role.ID)
	}
	m.detailViewport.SetContent(m.renderDetail())
	return m, cmd
}

func (m auditModel) loadChangesCmd(roleID int64) tea.Cmd {
	load := m.loadChanges
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		changes, err := load(ctx, roleID, recentChangeLimit)
		return changesLoadedMsg{roleID: roleID, changes: changes, err: err}
	}
}

func (m *auditModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *auditModel) recalcContent() {
	m.leftViewport.SetContent(renderRoles(m.surfaced, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderRoles(m.skipped, m.rightCursor, m.activePane == 1))
}

func (m auditModel) activeEntries() []auditEntry {
	if m.activePane == 0 {
		return m.surfaced
	}
	return m.skipped
}

func (m auditModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m auditModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Qualified / Maybe (%d)", len(m.surfaced))
	rightHeader := fmt.Sprintf(" Skipped (%d)", len(m.skipped))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d roles | %d surfaced | %d skipped | %d tier drift    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.surfaced)+len(m.skipped), len(m.surfaced), len(m.skipped), countDrift(m.surfaced)+countDrift(m.skipped))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m auditModel) viewDetail() string {
	title := detailTitleStyle.Render("Role Details")
	if m.changesLoading {
		title += "  (loading changes...)"
	}

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusBar := statusBarStyle.Width(m.width).Render(" esc/backspace back  ↑/↓ scroll  q quit")

	return title + "\n" + content + "\n" + statusBar
}

func (m auditModel) renderDetail() string {
	r := m.detail.role
	f := r.Fields
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		b.WriteByte('\n')
		b.WriteString(dividerStyle.Render(label+fill) + "\n\n")
	}
	bullet := func(s string) {
		b.WriteString(detailValueStyle.Render(wordWrap("  • "+s, wrapWidth)) + "\n")
	}

	addField("Title", f.Title)
	addField("Company", f.Company.Name)
	addField("External ID", r.ExternalID)
	addField("Status", string(r.Status))
	addField("Locations", strings.Join(f.Locations, ", "))
	addField("Workplace", f.WorkplaceType)
	addField("Role types", strings.Join(f.RoleTypes, ", "))
	addField("Salary", formatSalary(f.SalaryLower, f.SalaryUpper))
	if f.PercentFee != nil {
		addField("Fee", fmt.Sprintf("%g%%", *f.PercentFee))
	}
	if f.Company.FundingAmount != "" || f.FundingStage() != "" {
		addField("Funding", strings.TrimSpace(f.Company.FundingAmount+" "+f.FundingStage()))
	}

	b.WriteByte('\n')
	addField("Posted", m.fmtTime(r.PostedAt()))
	addField("First seen", m.fmtTime(r.FirstSeenAt))
	addField("Last seen", m.fmtTime(r.LastSeenAt))
	if r.RemovedAt != nil {
		addField("Removed", m.fmtTime(*r.RemovedAt))
	}

	divider("── Gate ")
	addField("Stored tier", string(r.Assessment.Tier))
	current := string(m.detail.verdict.Tier)
	if m.detail.drifted() {
		current = driftStyle.Render(current + " (differs from stored)")
	}
	addField("Current tier", current)
	b.WriteByte('\n')
	for _, reason := range m.detail.verdict.Reasons {
		bullet(reason)
	}

	if s := r.Assessment.Scores; s != nil {
		divider("── Scores ")
		addField("Combined", fmt.Sprintf("%.2f (%s)", s.Combined, s.DisplayTier))
		for _, p := range s.Perspectives {
			addField(titleCase(p.Name), fmt.Sprintf("%.2f", p.Score))
			for _, line := range breakdownLines(p.Breakdown) {
				b.WriteString(hintStyle.Render("    "+line) + "\n")
			}
		}
		addField("Excitement", fmt.Sprintf("%.2f", s.Excitement.Score))
		for _, sig := range s.Excitement.Signals {
			b.WriteString(hintStyle.Render("    "+sig) + "\n")
		}
		if len(s.Signals) > 0 {
			b.WriteByte('\n')
			for _, sig := range s.Signals {
				bullet(sig)
			}
		}
	}
	if r.Assessment.Trend != model.TrendNone {
		b.WriteByte('\n')
		addField("Trend", string(r.Assessment.Trend))
	}

	divider("── Recent changes ")
	switch {
	case m.changesError != "":
		b.WriteString(errorStyle.Render("⚠ "+m.changesError) + "\n")
	case m.changesLoading:
		b.WriteString(hintStyle.Render("  loading change log...") + "\n")
	case len(m.changes) == 0:
		b.WriteString(hintStyle.Render("  no changes recorded") + "\n")
	default:
		for _, c := range m.changes {
			b.WriteString(detailValueStyle.Render(fmt.Sprintf("  %s  %s", c.DetectedAt.In(m.location).Format("2006-01-02"), formatChange(c))) + "\n")
		}
	}

	return b.String()
}

func (m auditModel) fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(m.location).Format("2006-01-02 15:04 MST")
}

func renderRoles(entries []auditEntry, cursor int, isActive bool) string {
	if len(entries) == 0 {
		return "  (no roles)"
	}

	var b strings.Builder
	for i, e := range entries {
		isSelected := isActive && i == cursor

		titleSt := roleTitleStyle
		subtitleSt := roleSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedRoleTitleStyle
			subtitleSt = selectedRoleSubtitleStyle
			prefix = "> "
		}

		title := e.role.Fields.Title
		if e.drifted() {
			title = "* " + title
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(e)))
		b.WriteByte('\n')

		if i < len(entries)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func subtitle(e auditEntry) string {
	parts := []string{orDash(e.role.Fields.Company.Name), string(e.verdict.Tier)}
	if s := e.role.Assessment.Scores; s != nil {
		parts = append(parts, fmt.Sprintf("%.2f", s.Combined))
	} else if len(e.verdict.Reasons) > 0 && e.verdict.Tier == model.TierSkip {
		parts = append(parts, e.verdict.Reasons[0])
	}
	return strings.Join(parts, " · ")
}

// splitRoles re-gates every role and partitions them into surfaced and
// skipped lists. Surfaced roles sort by stored combined score, skipped ones
// by most recently seen.
func splitRoles(roles []model.Role, gate *qualify.Gate) (surfaced, skipped []auditEntry) {
	for _, r := range roles {
		e := auditEntry{role: r, verdict: gate.Evaluate(r.Fields, r.Status)}
		if e.verdict.Tier.Surfaced() {
			surfaced = append(surfaced, e)
		} else {
			skipped = append(skipped, e)
		}
	}
	sort.SliceStable(surfaced, func(i, j int) bool {
		a, b := surfaced[i].role.Assessment.Scores, surfaced[j].role.Assessment.Scores
		switch {
		case a == nil && b == nil:
			return surfaced[i].role.ExternalID < surfaced[j].role.ExternalID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Combined != b.Combined:
			return a.Combined > b.Combined
		}
		return surfaced[i].role.ExternalID < surfaced[j].role.ExternalID
	})
	sort.SliceStable(skipped, func(i, j int) bool {
		return skipped[i].role.LastSeenAt.After(skipped[j].role.LastSeenAt)
	})
	return surfaced, skipped
}

func countDrift(entries []auditEntry) int {
	n := 0
	for _, e := range entries {
		if e.drifted() {
			n++
		}
	}
	return n
}

func breakdownLines(breakdown map[string]float64) []string {
	keys := make([]string, 0, len(breakdown))
	width := 0
	for k := range breakdown {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-*s  %.2f", width, k, breakdown[k]))
	}
	return lines
}

func formatChange(c model.RoleChange) string {
	if c.Field == "" {
		return string(c.Type)
	}
	return fmt.Sprintf("%s  %s: %s → %s", c.Type, c.Field, orDash(c.OldValue), orDash(c.NewValue))
}

func formatSalary(lower, upper *int64) string {
	switch {
	case lower != nil && upper != nil:
		return fmt.Sprintf("$%dk - $%dk", *lower/1000, *upper/1000)
	case upper != nil:
		return fmt.Sprintf("up to $%dk", *upper/1000)
	case lower != nil:
		return fmt.Sprintf("from $%dk", *lower/1000)
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RunAuditTUI launches the interactive split-pane audit TUI. Every role is
// re-evaluated against gate so rules edited since the last run show up as tier
// drift. loadChanges may be nil. Returns wantQuit=true if the user pressed
// q/ctrl+c, false if they pressed esc to return to the picker.
func RunAuditTUI(roles []model.Role, gate *qualify.Gate, loadChanges ChangeLoader, loc *time.Location) (bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	surfaced, skipped := splitRoles(roles, gate)

	m := auditModel{
		surfaced:    surfaced,
		skipped:     skipped,
		location:    loc,
		loadChanges: loadChanges,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(auditModel)
	return final.wantQuit, nil
}
