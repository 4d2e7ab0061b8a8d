// Package demo drives the registry with fake terminal sessions so the menu,
// push channel and activation flow can be tried without OS scripting.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
	"github.com/termfocus/termfocus/internal/window"
	"github.com/termfocus/termfocus/internal/ws"
)

// DefaultInterval is the tick period used by serve --demo.
const DefaultInterval = 2 * time.Second

var demoLog = logging.ForComponent(logging.CompDemo)

type demoSession struct {
	windowID string
	title    string
	pattern  string
	messages []string
	msgIdx   int

	lifetime int // ticks before the session terminates (0 = never)
	downtime int // ticks before a terminated session re-registers
	closeAt  int // tick at which the window closes but the session stays (0 = never)
	reopenAt int // tick at which a closed window comes back

	born   int
	gone   bool
	goneAt int
}

// Generator registers a fixed set of sessions and keeps updating them
// through the same event path the ingestion endpoint uses.
type Generator struct {
	store    *session.Store
	windows  *window.Demo
	interval time.Duration
	rng      *rand.Rand
	sessions []*demoSession
}

func NewGenerator(store *session.Store, windows *window.Demo, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		store:    store,
		windows:  windows,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: defaultSessions(),
	}
}

func defaultSessions() []*demoSession {
	return []*demoSession{
		{
			windowID: "1001", title: "build", pattern: "steady",
			messages: []string{"resolving modules", "compiling", "linking", "build ok"},
		},
		{
			windowID: "1002", title: "tests", pattern: "burst",
			messages: []string{"running unit tests", "running integration tests", "all tests passed", "2 tests failed"},
		},
		{
			windowID: "1003", title: "deploy", pattern: "stall",
			messages: []string{"uploading artifacts", "waiting for approval", "rolling out", "deployed"},
		},
		{
			windowID: "1004", title: "dev server", pattern: "steady",
			messages: []string{"listening on :3000", "reloaded", "request error"},
			lifetime: 30, downtime: 6,
		},
		{
			windowID: "1005", title: "ssh prod", pattern: "stall",
			messages: []string{"connected", "tailing logs", "disk usage 91%"},
			closeAt: 15, reopenAt: 45,
		},
	}
}

// Seed registers every demo session and opens its window.
func (g *Generator) Seed() {
	for _, ds := range g.sessions {
		g.windows.Open(ds.windowID)
		g.emit(ds.windowID, ds.title, "starting")
	}
}

// Run seeds the registry and advances the sessions every interval until ctx
// is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	g.Seed()
	demoLog.Info("demo_started", slog.Int("sessions", len(g.sessions)), slog.Duration("interval", g.interval))

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick++
			g.Step(tick)
		}
	}
}

// Step advances every session by one tick.
func (g *Generator) Step(tick int) {
	for _, ds := range g.sessions {
		g.advance(ds, tick)
	}
}

func (g *Generator) advance(ds *demoSession, tick int) {
	if ds.gone {
		if tick-ds.goneAt >= ds.downtime {
			ds.gone = false
			ds.born = tick
			ds.msgIdx = 0
			g.windows.Open(ds.windowID)
			g.emit(ds.windowID, ds.title, "restarted")
		}
		return
	}

	if ds.closeAt > 0 && tick == ds.closeAt {
		// The session stays registered, so selecting it exercises the
		// stale-session path.
		g.windows.Close(ds.windowID)
		demoLog.Debug("demo_window_closed", slog.String("window_id", ds.windowID))
	}
	if ds.reopenAt > 0 && tick == ds.reopenAt {
		g.windows.Open(ds.windowID)
	}

	if ds.lifetime > 0 && tick-ds.born >= ds.lifetime {
		g.emit(ds.windowID, session.TerminateTitle, "")
		g.windows.Close(ds.windowID)
		ds.gone = true
		ds.goneAt = tick
		return
	}

	if !g.due(ds, tick) {
		return
	}
	msg := ds.messages[ds.msgIdx%len(ds.messages)]
	ds.msgIdx++
	if ds.pattern == "steady" {
		msg = fmt.Sprintf("%s (%d%%)", msg, min(100, (tick-ds.born)*100/30+g.rng.Intn(5)))
	}
	g.emit(ds.windowID, ds.title, msg)
}

// due reports whether ds publishes an update on this tick.
func (g *Generator) due(ds *demoSession, tick int) bool {
	age := tick - ds.born
	switch ds.pattern {
	case "steady":
		return age%3 == 0
	case "burst":
		// Three quick updates, then quiet.
		return age%8 < 3
	case "stall":
		// Work for 12 ticks, then wait for 8.
		phase := age % 20
		return phase < 12 && phase%4 == 0
	}
	return false
}

func (g *Generator) emit(windowID, title, message string) {
	req := ws.EventRequest{WindowID: ws.WindowID(windowID), Title: title, Message: message}
	result, err := req.Apply(g.store)
	if err != nil {
		demoLog.Warn("demo_event_failed", slog.String("window_id", windowID), slog.String("error", err.Error()))
		return
	}
	demoLog.Debug("demo_event", slog.String("result", result), slog.String("title", title))
}
