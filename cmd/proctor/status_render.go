package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"proctor/internal/ipc"
	"proctor/internal/signal"
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
	statusLabelWidth = 24
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
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

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// humanize turns a snake_case identifier such as tab_focus into "Tab Focus".
func humanize(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func signalStatusKind(value string) statusKind {
	switch value {
	case "ok":
		return statusOK
	case "violated":
		return statusError
	default:
		return statusInfo
	}
}

func daemonLines(resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 6)
	if resp.Running {
		lines = append(lines, renderStatusLine("Monitoring", statusOK, "Running", colorize))
	} else {
		lines = append(lines, renderStatusLine("Monitoring", statusWarn, "Stopped", colorize))
	}
	lines = append(lines, renderStatusLine("Session", statusInfo, resp.SessionID, colorize))
	if resp.PID > 0 {
		lines = append(lines, renderStatusLine("Daemon PID", statusInfo, fmt.Sprintf("%d", resp.PID), colorize))
	}
	if resp.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, resp.DatabasePath, colorize))
	}
	lines = append(lines, renderStatusLine("Log entries", statusInfo, fmt.Sprintf("%d", resp.LogEntries), colorize))
	if resp.ReloadLatched {
		lines = append(lines, renderStatusLine("Hard reload", statusWarn, "In progress", colorize))
	}
	return lines
}

func activeLines(active *ipc.ActiveViolation, colorize bool) []string {
	if active == nil {
		return []string{renderStatusLine("Violation", statusOK, "None", colorize)}
	}
	label := humanize(active.Kind)
	if active.Seq > 0 {
		label = fmt.Sprintf("%s (#%d)", label, active.Seq)
	}
	lines := []string{
		renderStatusLine("Violation", statusError, label, colorize),
		renderStatusLine("Message", statusInfo, active.Message, colorize),
	}
	if active.Prompt != "" {
		prompt := "Closed"
		if active.PromptOpen {
			prompt = "Open: " + active.Prompt
		}
		lines = append(lines, renderStatusLine("Prompt", statusInfo, prompt, colorize))
	}
	if active.ButtonLabel != "" {
		lines = append(lines, renderStatusLine("Button", statusInfo, fmt.Sprintf("%s (%s)", active.ButtonLabel, active.Action), colorize))
	}
	if !active.Since.IsZero() {
		lines = append(lines, renderStatusLine("Since", statusInfo, active.Since.Local().Format("15:04:05"), colorize))
	}
	return lines
}

// signalLines renders signals in slot order so output is stable.
func signalLines(values map[string]string, noise bool, colorize bool) []string {
	lines := make([]string, 0, signal.Count+1)
	for _, id := range signal.All() {
		value, ok := values[id.String()]
		if !ok {
			value = signal.Unset.String()
		}
		lines = append(lines, renderStatusLine(humanize(id.String()), signalStatusKind(value), value, colorize))
	}
	if noise {
		lines = append(lines, renderStatusLine("Noise", statusWarn, "Detected (advisory)", colorize))
	}
	return lines
}
