package window

import (
	"context"
	"fmt"
	"sync"
)

// Demo is an in-memory backend. Windows exist once opened and can be closed
// to simulate a stale session.
type Demo struct {
	mu      sync.Mutex
	open    map[string]bool
	front   string
	current string
}

func NewDemo() *Demo {
	return &Demo{open: make(map[string]bool)}
}

func (d *Demo) Name() string { return "demo" }

func (d *Demo) ValidateID(windowID string) error {
	if windowID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	return nil
}

// Open marks a window as existing.
func (d *Demo) Open(windowID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[windowID] = true
	if d.current == "" {
		d.current = windowID
	}
}

// Close makes later activations of windowID fail.
func (d *Demo) Close(windowID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, windowID)
	if d.front == windowID {
		d.front = ""
	}
}

// Front returns the most recently raised window.
func (d *Demo) Front() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.front
}

func (d *Demo) CurrentWindowID(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == "" || !d.open[d.current] {
		return "", ErrNoWindow
	}
	return d.current, nil
}

func (d *Demo) Activate(ctx context.Context, windowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open[windowID] {
		return fmt.Errorf("%w: demo window %s", ErrWindowNotFound, windowID)
	}
	d.front = windowID
	return nil
}
