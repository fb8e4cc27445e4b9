package main

import (
	"fmt"
	"io"
	"strings"
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

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

var statusKindLabels = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
}

var statusKindColors = map[statusKind]string{
	statusInfo:  ansiBlue,
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := "[" + statusKindLabels[kind] + "]"
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColors[kind]; color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func printSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}
