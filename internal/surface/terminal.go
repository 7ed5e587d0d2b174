package surface

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"bankchat/internal/agent"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	defaultWidth = 80
	maxBarWidth  = 40
)

var (
	dimStyle       = lipgloss.NewStyle().Faint(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC8800")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	replyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
)

// Terminal 把渲染调用输出为带样式的终端文本。
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	typing bool
}

// NewTerminal 创建终端渲染器，width<=0 时使用 80 列。
func NewTerminal(out io.Writer, width int) *Terminal {
	if width <= 0 {
		width = defaultWidth
	}
	return &Terminal{out: out, width: width}
}

// WriteToken 直接写出流式文本增量。
func (t *Terminal) WriteToken(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTypingLocked()
	fmt.Fprint(t.out, text)
}

func (t *Terminal) AddMessage(role agent.Role, text string) {
	t.writeBlock(roleStyle(role).Render(string(role)+":") + " " + text)
}

func (t *Terminal) AddTable(headers []string, rows [][]string) {
	if len(headers) == 0 && len(rows) == 0 {
		return
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if len(headers) > 0 {
		tbl = tbl.Headers(headers...)
	}
	tbl = tbl.Rows(rows...)
	t.writeBlock(tbl.String())
}

func (t *Terminal) AddChart(spec ChartSpec) {
	t.writeBlock(renderChart(spec, t.width))
}

func (t *Terminal) AddImage(url, alt string) {
	label := strings.TrimSpace(alt)
	if label == "" {
		label = "image"
	}
	t.writeBlock(fmt.Sprintf("[%s] %s", label, dimStyle.Render(url)))
}

func (t *Terminal) AddQuickReply(options []string) {
	if len(options) == 0 {
		return
	}
	buttons := make([]string, 0, len(options))
	for i, opt := range options {
		buttons = append(buttons, replyStyle.Render(fmt.Sprintf("%d. %s", i+1, opt)))
	}
	t.writeBlock(lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
}

func (t *Terminal) ShowTypingIndicator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.typing {
		return
	}
	t.typing = true
	fmt.Fprint(t.out, dimStyle.Render("…"))
}

func (t *Terminal) HideTypingIndicator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTypingLocked()
}

func (t *Terminal) clearTypingLocked() {
	if !t.typing {
		return
	}
	t.typing = false
	fmt.Fprint(t.out, "\r\x1b[K")
}

func (t *Terminal) writeBlock(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTypingLocked()
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, s)
}

func roleStyle(role agent.Role) lipgloss.Style {
	switch role {
	case agent.RoleUser:
		return userStyle
	case agent.RoleSystem:
		return systemStyle
	default:
		return assistantStyle
	}
}

// renderChart 以水平条形图输出，所有类型共用同一种表现。
func renderChart(spec ChartSpec, width int) string {
	var b strings.Builder
	if spec.Title != "" {
		b.WriteString(titleStyle.Render(spec.Title))
		b.WriteByte('\n')
	}
	n := min(len(spec.Labels), len(spec.Values))
	if n == 0 {
		b.WriteString(dimStyle.Render("(empty chart)"))
		return b.String()
	}

	labelWidth := 0
	maxValue := 0.0
	for i := 0; i < n; i++ {
		labelWidth = max(labelWidth, lipgloss.Width(spec.Labels[i]))
		maxValue = max(maxValue, math.Abs(spec.Values[i]))
	}
	barWidth := min(maxBarWidth, width-labelWidth-16)
	if barWidth < 1 {
		barWidth = 1
	}

	for i := 0; i < n; i++ {
		size := 0
		if maxValue > 0 {
			size = int(math.Round(math.Abs(spec.Values[i]) / maxValue * float64(barWidth)))
		}
		pad := strings.Repeat(" ", labelWidth-lipgloss.Width(spec.Labels[i]))
		fmt.Fprintf(&b, "%s%s %s %s", spec.Labels[i], pad, barStyle.Render(strings.Repeat("█", size)), formatValue(spec.Values[i]))
		if i < n-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
