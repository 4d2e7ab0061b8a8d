package window

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// maxAncestors bounds the parent walk so a cycle or a very deep tree cannot
// spin forever.
const maxAncestors = 16

// ProcessLookup answers process-table questions. It exists so tests can run
// without a real process table.
type ProcessLookup interface {
	Running(ctx context.Context, name string) (bool, error)
	Ancestors(ctx context.Context, pid int32) ([]int32, error)
}

type psLookup struct{}

// Running reports whether a process whose executable name matches name
// (case-insensitive) exists.
func (psLookup) Running(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}

// Ancestors returns pid followed by its parents, nearest first, stopping at
// init.
func (psLookup) Ancestors(ctx context.Context, pid int32) ([]int32, error) {
	chain := []int32{pid}
	current := pid
	for i := 0; i < maxAncestors; i++ {
		p, err := process.NewProcessWithContext(ctx, current)
		if err != nil {
			return chain, err
		}
		parent, err := p.PpidWithContext(ctx)
		if err != nil {
			return chain, err
		}
		if parent <= 1 || parent == current {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}
