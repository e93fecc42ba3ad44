package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const ansiReset = "\x1b[0m"

// statusBlock collects "label: [KIND] message" lines and prints them with the
// labels padded to the longest one.
type statusBlock struct {
	lines []statusLine
}

type statusLine struct {
	label   string
	kind    statusKind
	message string
}

func (b *statusBlock) add(label string, kind statusKind, message string) {
	b.lines = append(b.lines, statusLine{label: label, kind: kind, message: message})
}

func (b *statusBlock) addf(label string, kind statusKind, format string, args ...any) {
	b.add(label, kind, fmt.Sprintf(format, args...))
}

func (b *statusBlock) write(w io.Writer) {
	width := 0
	for _, line := range b.lines {
		width = max(width, len(line.label)+1)
	}
	colorize := shouldColorize(w)
	for _, line := range b.lines {
		kind := statusKinds[line.kind]
		text := fmt.Sprintf("  %-*s [%s]", width, line.label+":", kind.label)
		if line.message != "" {
			text += " " + line.message
		}
		if colorize {
			text = kind.color + text + ansiReset
		}
		fmt.Fprintln(w, text)
	}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
