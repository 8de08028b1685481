// Package tui provides terminal user interface components for netbsd-imager.
//
// This package uses the Bubble Tea framework to create interactive terminal
// interfaces, primarily for choosing which nightly build to install.
//
// # Release Picker
//
// The picker lists the releases of a branch, newest first:
//
//	releases, err := locator.List(ctx, cfg.Branch)
//	result, err := tui.RunPicker(releases, state.Release)
//	switch result.Action {
//	case tui.ActionSelect:
//	    // Build from result.Release.Name
//	case tui.ActionQuit, tui.ActionNone:
//	    // Exit
//	}
//
// # Picker Features
//
//   - Keyboard navigation (j/k or arrows) and filtering with /
//   - The release the work directory was installed from is marked current
//   - Build time shown absolute and relative
//
// SimpleList renders the same data as plain text for scripts and pipes.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
