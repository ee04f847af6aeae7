package notifyfakerepo

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/go-session-keeper/notify"
)

// Warning is a dialog recorded by the FakeGateway
type Warning struct {
	Handle    notify.Handle
	Title     string
	Body      string
	Updates   []string
	Closed    bool
	Extend    func()
	OnDismiss func()
}

// Notice is a terminal, success or error notice
type Notice struct {
	Title string
	Body  string
}

// FakeGateway records every notice and lets tests play the user
type FakeGateway struct {
	warnings  []*Warning
	terminals []Notice
	successes []string
	errors    []Notice
	lock      sync.RWMutex
}

var _ notify.Gateway = (*FakeGateway)(nil)

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (g *FakeGateway) ShowWarning(title, body string, onExtend, onDismiss func()) notify.Handle {
	g.lock.Lock()
	defer g.lock.Unlock()

	h := notify.Handle(fmt.Sprintf("warning-%d", len(g.warnings)+1))
	g.warnings = append(g.warnings, &Warning{
		Handle:    h,
		Title:     title,
		Body:      body,
		Extend:    onExtend,
		OnDismiss: onDismiss,
	})
	return h
}

func (g *FakeGateway) UpdateWarning(h notify.Handle, body string) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if w := g.find(h); w != nil && !w.Closed {
		w.Updates = append(w.Updates, body)
		w.Body = body
	}
}

func (g *FakeGateway) CloseWarning(h notify.Handle) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if w := g.find(h); w != nil {
		w.Closed = true
	}
}

func (g *FakeGateway) ShowTerminal(title, body string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.terminals = append(g.terminals, Notice{Title: title, Body: body})
}

func (g *FakeGateway) ShowSuccess(message string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.successes = append(g.successes, message)
}

func (g *FakeGateway) ShowError(title, body string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.errors = append(g.errors, Notice{Title: title, Body: body})
}

// ExtendLatest fires the extend intent of the newest open dialog
func (g *FakeGateway) ExtendLatest() bool {
	g.lock.RLock()
	w := g.latestOpen()
	g.lock.RUnlock()

	if w == nil || w.Extend == nil {
		return false
	}
	w.Extend()
	return true
}

// DismissLatest closes the newest open dialog and fires its dismiss intent
func (g *FakeGateway) DismissLatest() bool {
	g.lock.Lock()
	w := g.latestOpen()
	if w != nil {
		w.Closed = true
	}
	g.lock.Unlock()

	if w == nil {
		return false
	}
	if w.OnDismiss != nil {
		w.OnDismiss()
	}
	return true
}

// Warnings returns copies of every dialog shown so far
func (g *FakeGateway) Warnings() []Warning {
	g.lock.RLock()
	defer g.lock.RUnlock()

	out := make([]Warning, 0, len(g.warnings))
	for _, w := range g.warnings {
		c := *w
		c.Updates = append([]string(nil), w.Updates...)
		out = append(out, c)
	}
	return out
}

// OpenWarnings returns how many dialogs are shown and not closed
func (g *FakeGateway) OpenWarnings() int {
	g.lock.RLock()
	defer g.lock.RUnlock()

	n := 0
	for _, w := range g.warnings {
		if !w.Closed {
			n++
		}
	}
	return n
}

func (g *FakeGateway) Terminals() []Notice {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return append([]Notice(nil), g.terminals...)
}

func (g *FakeGateway) Successes() []string {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return append([]string(nil), g.successes...)
}

func (g *FakeGateway) Errors() []Notice {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return append([]Notice(nil), g.errors...)
}

func (g *FakeGateway) find(h notify.Handle) *Warning {
	for _, w := range g.warnings {
		if w.Handle == h {
			return w
		}
	}
	return nil
}

func (g *FakeGateway) latestOpen() *Warning {
	for i := len(g.warnings) - 1; i >= 0; i-- {
		if !g.warnings[i].Closed {
			return g.warnings[i]
		}
	}
	return nil
}
