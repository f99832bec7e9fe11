package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nftpin/internal/pinstore"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

func (k statusKind) label() string { return statusKinds[k].label }

// paint wraps text in the kind's colour when colorize is set.
func (k statusKind) paint(text string, colorize bool) string {
	if !colorize {
		return text
	}
	return statusKinds[k].color + text + ansiReset
}

const statusLabelWidth = 20

var titleCaser = cases.Title(language.Und)

// renderStatusLine formats "  Label:   [KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + kind.label() + "]"
	if message != "" {
		badge += " " + message
	}
	return kind.paint(fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", badge), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	return []string{
		statusInfo.paint(line, colorize),
		statusInfo.paint(strings.Repeat("-", len(line)), colorize),
	}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// displayStatus turns "pinning_failed" into "Pinning Failed".
func displayStatus(status string) string {
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

// pinStatusKind maps a pin status to its severity.
func pinStatusKind(status string) statusKind {
	switch pinstore.PinStatus(status) {
	case pinstore.StatusPinned:
		return statusOK
	case pinstore.StatusPinningFailed, pinstore.StatusUnpinningFailed:
		return statusError
	case pinstore.StatusNotPinned:
		return statusInfo
	default:
		return statusWarn
	}
}

// paintedStatus is the display label for status, coloured by severity.
func paintedStatus(status string, colorize bool) string {
	return pinStatusKind(status).paint(displayStatus(status), colorize)
}

// buildStatusCountRows lists counts in lifecycle order, skipping zeros.
func buildStatusCountRows(counts map[string]int, colorize bool) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range pinstore.AllStatuses() {
		if n := counts[string(status)]; n > 0 {
			rows = append(rows, []string{paintedStatus(string(status), colorize), strconv.Itoa(n)})
		}
	}
	return rows
}
