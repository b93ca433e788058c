// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Blueprint CLI.
//
// Output degrades to plain text when stdout is not a terminal, so the
// lint command stays pipeable and CI-friendly.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Blueprint color palette - drafting-table blues and graphite
var (
	ColorBlueBright  = lipgloss.Color("#4FA8FF") // Highlights, links
	ColorBluePrimary = lipgloss.Color("#2D7DD2") // Main brand color
	ColorBlueDeep    = lipgloss.Color("#1B4E8A") // Borders, accents
	ColorGraphite    = lipgloss.Color("#5A6572") // Muted text
	ColorPaper       = lipgloss.Color("#E8EEF4") // Light foreground

	ColorSuccess = lipgloss.Color("#3EC98E") // Green for achieved requirements
	ColorWarning = lipgloss.Color("#F4D03F") // Amber for advisory findings
	ColorError   = lipgloss.Color("#E74C3C") // Red for catalogue errors
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorBlueBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorGraphite),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlueDeep).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// plain reports whether styled output should be suppressed. Overridable
// in tests.
var plain = func() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Title prints a styled title.
func Title(text string) {
	if plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark.
func Success(text string) {
	if plain() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if plain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if plain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message.
func Info(text string) {
	if plain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text, omitted entirely in plain mode.
func Muted(text string) {
	if plain() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// ItemStatus prints one requirement or file with its status icon.
func ItemStatus(name string, status Icon, reason string) {
	if plain() {
		fmt.Printf("%s\t%s\t%s\n", status, name, reason)
		return
	}
	if reason != "" {
		fmt.Printf("%s %s %s\n", status.Render(), name, Styles.Muted.Render("("+reason+")"))
		return
	}
	fmt.Printf("%s %s\n", status.Render(), name)
}

// Summary prints a summary line with counts.
func Summary(passed, warned, total int) {
	if plain() {
		fmt.Printf("SUMMARY: passed=%d warnings=%d total=%d\n", passed, warned, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", passed)), Styles.Muted.Render("passed"),
		Styles.Warning.Render(fmt.Sprintf("%d", warned)), Styles.Muted.Render("warnings"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
	)
}
