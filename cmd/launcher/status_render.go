package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"cmdlauncher/internal/daemonctl"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 16

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// statusLine is one "label: [KIND] detail" row of `launcher status`.
type statusLine struct {
	label  string
	kind   statusKind
	detail string
}

func (l statusLine) render(colorize bool) string {
	kind := statusKinds[l.kind]
	text := "[" + kind.label + "]"
	if l.detail != "" {
		text += " " + l.detail
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, l.label+":", text)
	if colorize {
		return kind.color + line + ansiReset
	}
	return line
}

func daemonStatusLines(snap *daemonctl.Snapshot, controlPath, segmentPath string) []statusLine {
	lines := make([]statusLine, 0, 3)

	switch {
	case snap.Running && snap.PID > 0:
		lines = append(lines, statusLine{"Daemon", statusOK, fmt.Sprintf("running (pid %d)", snap.PID)})
	case snap.Running:
		lines = append(lines, statusLine{"Daemon", statusOK, "running"})
	default:
		lines = append(lines, statusLine{"Daemon", statusWarn, "not running"})
	}

	switch {
	case snap.ControlFIFO && !snap.Running:
		lines = append(lines, statusLine{"Control FIFO", statusWarn, controlPath + " left behind; run 'launcher cleanup'"})
	case snap.ControlFIFO:
		lines = append(lines, statusLine{"Control FIFO", statusOK, controlPath})
	case snap.Running:
		lines = append(lines, statusLine{"Control FIFO", statusError, controlPath + " missing"})
	default:
		lines = append(lines, statusLine{"Control FIFO", statusInfo, "absent"})
	}

	switch {
	case snap.QueueError != "":
		lines = append(lines, statusLine{"Segment", statusError, snap.QueueError})
	case snap.SegmentPresent && !snap.Running:
		lines = append(lines, statusLine{"Segment", statusWarn, segmentPath + " left behind; run 'launcher cleanup'"})
	case snap.SegmentPresent:
		lines = append(lines, statusLine{"Segment", statusOK, segmentPath})
	case snap.Running:
		lines = append(lines, statusLine{"Segment", statusError, segmentPath + " missing"})
	default:
		lines = append(lines, statusLine{"Segment", statusInfo, "absent"})
	}
	return lines
}

func writeSectionHeader(w io.Writer, title string, colorize bool) {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, rule)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
