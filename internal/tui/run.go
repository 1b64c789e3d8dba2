package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sjawhar/ghost-wispr-live/internal/level"
)

// Notifier lets the program learn about history reloads.
type Notifier interface {
	OnRefresh(callback func(int))
}

// Run shows the terminal UI until the user quits or ctx is cancelled. Frames
// come from sampler, never from the inbound message rate.
func Run(ctx context.Context, deps Deps, sampler *level.Sampler, refreshes Notifier) error {
	m := NewModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if refreshes != nil {
		refreshes.OnRefresh(func(n int) { p.Send(historyChangedMsg{count: n}) })
		defer refreshes.OnRefresh(nil)
	}

	frameCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if sampler != nil {
		go sampler.Run(frameCtx, func(f level.Frame) { p.Send(frameMsg(f)) })
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
