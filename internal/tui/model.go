// Package tui implements the gvcam-cli bubbletea program: a live view of
// the controller flag and request/error counts, a register inspector, and
// a host resource strip, in the usual bubbletea Model/Init/Update/View
// shape. Heartbeat activity is not shown.
package tui

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"gvcam/internal/session"
)

// FileLogger appends timestamped lines to a log file under the OS temp
// directory. Optional: a nil *FileLogger silently drops writes.
type FileLogger struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

var (
	logger     *FileLogger
	loggerOnce sync.Once
)

// GetLogger returns the singleton file logger, opening its log file on
// first use.
func GetLogger() *FileLogger {
	loggerOnce.Do(func() {
		logger = &FileLogger{}
		logger.init()
	})
	return logger
}

func (l *FileLogger) init() {
	logDir := filepath.Join(os.TempDir(), "gvcam-cli-logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not create log directory: %v\n", err)
		return
	}
	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("gvcam-cli_%s.log", timestamp))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file: %v\n", err)
		return
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	fmt.Fprintf(os.Stderr, "cli logs: %s\n", logPath)
}

// Write appends msg to the log file, if one was successfully opened.
func (l *FileLogger) Write(msg string) {
	if l == nil || l.writer == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	timestamp := time.Now().Format("2006/01/02 15:04:05")
	fmt.Fprintf(l.writer, "[%s] %s\n", timestamp, msg)
	l.writer.Flush()
}

// Close flushes and closes the log file.
func (l *FileLogger) Close() {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	l.file.Close()
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

type resourceMsg struct {
	cpuPercent float64
	memPercent float64
}

type lastTxnMsg struct {
	desc string
	err  error
}

type tickMsg time.Time

// Model is the bubbletea model for gvcam-cli.
type Model struct {
	dev       *session.Device
	sessionID string

	width, height int

	input       string
	copyXMLFlag bool

	cpuPercent float64
	memPercent float64

	lastTxnDesc string
	lastTxnErr  error

	txnLog   []string
	viewport viewport.Model

	quitting bool
}

// New builds the initial model for device, copying the loaded GenICam XML
// to the clipboard immediately if copyXML is set.
func New(dev *session.Device, copyXML bool) Model {
	if copyXML {
		if xml := dev.XML(); xml != nil {
			if err := clipboard.WriteAll(string(xml)); err != nil {
				GetLogger().Write(fmt.Sprintf("clipboard write failed: %v", err))
			}
		}
	}
	return Model{
		dev:         dev,
		sessionID:   uuid.NewString(),
		copyXMLFlag: copyXML,
		viewport:    viewport.New(78, 8),
	}
}

// Init starts the periodic resource-strip tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickResources(), tickClock())
}

func tickResources() tea.Cmd {
	return func() tea.Msg {
		cpuPercent, _ := psutil.Percent(0, false)
		memInfo, _ := psmem.VirtualMemory()
		msg := resourceMsg{}
		if len(cpuPercent) > 0 {
			msg.cpuPercent = cpuPercent[0]
		}
		if memInfo != nil {
			msg.memPercent = memInfo.UsedPercent
		}
		return msg
	}
}

func tickClock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = m.height / 3
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.handleInput()
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil
		default:
			if len(msg.String()) == 1 {
				m.input += msg.String()
			}
			return m, nil
		}

	case resourceMsg:
		m.cpuPercent = msg.cpuPercent
		m.memPercent = msg.memPercent
		return m, nil

	case tickMsg:
		return m, tea.Batch(tickResources(), tickClock())

	case lastTxnMsg:
		m.lastTxnDesc = msg.desc
		m.lastTxnErr = msg.err
		line := msg.desc
		if msg.err != nil {
			line = fmt.Sprintf("%s: %v", msg.desc, msg.err)
		}
		m.txnLog = append(m.txnLog, line)
		GetLogger().Write(fmt.Sprintf("[%s] %s", m.sessionID, line))
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// refreshViewport re-wraps the transaction log to the current viewport
// width and scrolls to the bottom.
func (m *Model) refreshViewport() {
	width := m.viewport.Width
	if width <= 0 {
		width = 78
	}
	var wrapped []string
	for _, line := range m.txnLog {
		wrapped = append(wrapped, ansi.Wordwrap(line, width, " \t"))
	}
	m.viewport.SetContent(strings.Join(wrapped, "\n"))
	m.viewport.GotoBottom()
}

// handleInput parses m.input as "read <hexaddr>" or "write <hexaddr> <hexvalue>".
func (m Model) handleInput() (tea.Model, tea.Cmd) {
	fields := strings.Fields(m.input)
	m.input = ""
	if len(fields) == 0 {
		return m, nil
	}

	switch strings.ToLower(fields[0]) {
	case "read":
		if len(fields) != 2 {
			return m, issueTxn("read: usage: read <hexaddr>", fmt.Errorf("bad arguments"))
		}
		addr, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			return m, issueTxn("read: invalid address", err)
		}
		return m, func() tea.Msg {
			value, err := m.dev.ReadRegister(uint32(addr))
			if err != nil {
				return lastTxnMsg{desc: fmt.Sprintf("read 0x%08x", addr), err: err}
			}
			return lastTxnMsg{desc: fmt.Sprintf("read 0x%08x = 0x%08x", addr, value)}
		}

	case "write":
		if len(fields) != 3 {
			return m, issueTxn("write: usage: write <hexaddr> <hexvalue>", fmt.Errorf("bad arguments"))
		}
		addr, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			return m, issueTxn("write: invalid address", err)
		}
		value, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			return m, issueTxn("write: invalid value", err)
		}
		return m, func() tea.Msg {
			if err := m.dev.WriteRegister(uint32(addr), uint32(value)); err != nil {
				return lastTxnMsg{desc: fmt.Sprintf("write 0x%08x", addr), err: err}
			}
			return lastTxnMsg{desc: fmt.Sprintf("write 0x%08x := 0x%08x", addr, value)}
		}
	}
	return m, issueTxn("unrecognized command (expected read/write)", fmt.Errorf("unrecognized command %q", fields[0]))
}

func issueTxn(desc string, err error) tea.Cmd {
	return func() tea.Msg {
		return lastTxnMsg{desc: desc, err: err}
	}
}

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return "bye.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", labelStyle.Render("gvcam-cli"), statusLine(m))
	fmt.Fprintf(&b, "%s  cpu %.1f%%  mem %.1f%%\n", labelStyle.Render("host"), m.cpuPercent, m.memPercent)
	fmt.Fprintf(&b, "\n%s\n", m.transactionLine())
	if len(m.txnLog) > 0 {
		fmt.Fprintf(&b, "\n%s\n", m.viewport.View())
	}
	fmt.Fprintf(&b, "\n> %s█\n", m.input)
	b.WriteString("\n(read <hexaddr> | write <hexaddr> <hexvalue> | q to quit)\n")
	return b.String()
}

func statusLine(m Model) string {
	stats := m.dev.Stats()
	controller := "no"
	if m.dev.IsController() {
		controller = okStyle.Render("yes")
	}
	return fmt.Sprintf("controller=%s requests=%d errors=%d", controller, stats.TotalRequests, stats.ErrorCount)
}

func (m Model) transactionLine() string {
	if m.lastTxnDesc == "" {
		return "no transactions yet"
	}
	if m.lastTxnErr != nil {
		return errStyle.Render(fmt.Sprintf("%s: %v", m.lastTxnDesc, m.lastTxnErr))
	}
	return okStyle.Render(m.lastTxnDesc)
}
