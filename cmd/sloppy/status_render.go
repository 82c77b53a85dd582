package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
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
	label  string
	colors text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const statusLabelWidth = 16

// statusWriter prints sectioned "label: [KIND] message" lines, coloured only
// when the destination is a terminal.
type statusWriter struct {
	out      io.Writer
	colorize bool
}

func newStatusWriter(out io.Writer) *statusWriter {
	return &statusWriter{out: out, colorize: isTerminal(out)}
}

func (w *statusWriter) section(title string) {
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(header))
	if w.colorize {
		header = text.FgBlue.Sprint(header)
		rule = text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(w.out, header)
	fmt.Fprintln(w.out, rule)
}

func (w *statusWriter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(w.out, w.format(label, kind, message))
}

func (w *statusWriter) format(label string, kind statusKind, message string) string {
	meta := statusKinds[kind]
	line := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, label+":", meta.label)
	if message != "" {
		line += " " + message
	}
	if w.colorize {
		return meta.colors.Sprint(line)
	}
	return line
}

func (w *statusWriter) blank() {
	fmt.Fprintln(w.out)
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
