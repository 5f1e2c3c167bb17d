package main

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"modscan/internal/driver"
	"modscan/internal/pipeline"
	"modscan/internal/ui"
)

type mergeOutcome struct {
	result *driver.Result
	err    error
}

func runMergeWithUI(ctx context.Context, out io.Writer, title string, paths []string, opts driver.Options) (*driver.Result, error) {
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan mergeOutcome, 1)

	go func() {
		opts.Progress = pipeline.ChannelSink{Ch: events}
		res, err := driver.MergeShards(ctx, paths, opts)
		outcomeCh <- mergeOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, len(paths), events)
	program := tea.NewProgram(model, tea.WithOutput(out), tea.WithInput(nil))
	_, uiErr := program.Run()
	// the program may stop reading early; the merge must not block on a full channel
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
