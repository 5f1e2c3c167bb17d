package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// progressMode is the --ui setting of merge.
type progressMode int

const (
	progressAuto progressMode = iota
	progressOn
	progressOff
)

var progressModeNames = map[string]progressMode{
	"":     progressAuto,
	"auto": progressAuto,
	"on":   progressOn,
	"off":  progressOff,
}

func parseProgressMode(value string) (progressMode, error) {
	mode, ok := progressModeNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return progressAuto, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
	return mode, nil
}

// drawsOn reports whether the shard counter is rendered on out. In auto
// mode it is drawn only on a terminal, leaving piped stdout to the
// violation report.
func (m progressMode) drawsOn(out io.Writer) bool {
	switch m {
	case progressOn:
		return true
	case progressOff:
		return false
	}
	f, ok := out.(*os.File)
	return ok && isTerminal(f)
}
