package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

var (
	amber   = lipgloss.Color("#F59E0B")
	red     = lipgloss.Color("#EF4444")
	emerald = lipgloss.Color("#10B981")
	gray    = lipgloss.Color("#6B7280")
)

// Intents typed by the user at the console
const (
	IntentExtend  = "extend"
	IntentDismiss = "dismiss"
)

type dialog struct {
	title     string
	onExtend  func()
	onDismiss func()
}

// Console renders dialogs as boxes on a terminal. Intents are delivered by
// calling Extend or Dismiss, or by feeding lines to ReadIntents.
type Console struct {
	out io.Writer

	warningBox  lipgloss.Style
	terminalBox lipgloss.Style
	title       lipgloss.Style
	countdown   lipgloss.Style
	hint        lipgloss.Style
	success     lipgloss.Style
	failure     lipgloss.Style

	mu     sync.Mutex
	open   map[Handle]*dialog
	latest Handle
}

var _ Gateway = (*Console)(nil)

func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out: out,
		warningBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(amber).
			Padding(0, 1),
		terminalBox: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(red).
			Padding(0, 1),
		title:     r.NewStyle().Bold(true),
		countdown: r.NewStyle().Foreground(amber),
		hint:      r.NewStyle().Foreground(gray).Italic(true),
		success:   r.NewStyle().Foreground(emerald).Bold(true),
		failure:   r.NewStyle().Foreground(red).Bold(true),
		open:      make(map[Handle]*dialog),
	}
}

func (c *Console) ShowWarning(title, body string, onExtend, onDismiss func()) Handle {
	h := Handle(uuid.NewString())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.open[h] = &dialog{title: title, onExtend: onExtend, onDismiss: onDismiss}
	c.latest = h

	hint := fmt.Sprintf("Type %q to hide this warning.", IntentDismiss)
	if onExtend != nil {
		hint = fmt.Sprintf("Type %q to stay signed in or %q to hide this warning.", IntentExtend, IntentDismiss)
	}
	box := c.warningBox.Render(lipgloss.JoinVertical(lipgloss.Left,
		c.title.Render(title),
		body,
		c.hint.Render(hint),
	))
	fmt.Fprintln(c.out, box)
	return h
}

func (c *Console) UpdateWarning(h Handle, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.open[h]; !ok {
		return
	}
	fmt.Fprintf(c.out, "\r%s", c.countdown.Render(body))
}

func (c *Console) CloseWarning(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(h)
}

func (c *Console) ShowTerminal(title, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.terminalBox.Render(lipgloss.JoinVertical(lipgloss.Left,
		c.title.Render(title),
		body,
	)))
}

func (c *Console) ShowSuccess(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.success.Render("✓ "+message))
}

func (c *Console) ShowError(title, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.failure.Render("✗ "+title)+" "+body)
}

// Extend fires the extend intent of the most recent open dialog. It reports
// false when no open dialog offers one.
func (c *Console) Extend() bool {
	c.mu.Lock()
	d, ok := c.open[c.latest]
	c.mu.Unlock()

	if !ok || d.onExtend == nil {
		return false
	}
	d.onExtend()
	return true
}

// Dismiss closes the most recent open dialog and fires its dismiss intent
func (c *Console) Dismiss() bool {
	c.mu.Lock()
	h := c.latest
	d, ok := c.open[h]
	if ok {
		c.closeLocked(h)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if d.onDismiss != nil {
		d.onDismiss()
	}
	return true
}

// HandleIntent dispatches one line of user input
func (c *Console) HandleIntent(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case IntentExtend, "ok", "e":
		return c.Extend()
	case IntentDismiss, "d", "cancel":
		return c.Dismiss()
	default:
		return false
	}
}

// ReadIntents reads lines from r until it is exhausted or ctx ends
func (c *Console) ReadIntents(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.HandleIntent(scanner.Text()) && strings.TrimSpace(scanner.Text()) != "" {
			c.mu.Lock()
			fmt.Fprintln(c.out, c.hint.Render("No open dialog accepts "+strings.TrimSpace(scanner.Text())))
			c.mu.Unlock()
		}
	}
	return scanner.Err()
}

// OpenWarnings returns the number of dialogs currently shown
func (c *Console) OpenWarnings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

func (c *Console) closeLocked(h Handle) {
	if _, ok := c.open[h]; !ok {
		return
	}
	delete(c.open, h)
	if c.latest == h {
		c.latest = ""
	}
	fmt.Fprintln(c.out)
}
