// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the lab UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// NewProgram creates the full-screen lab program
func NewProgram(lab Lab) *tea.Program {
	return tea.NewProgram(NewModel(lab), tea.WithAltScreen())
}

// Run starts the TUI and blocks until the user quits
func Run(lab Lab) error {
	_, err := NewProgram(lab).Run()
	return err
}
