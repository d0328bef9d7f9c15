// Package tui provides terminal UI utilities using charmbracelet libraries.
// It automatically detects terminal capabilities and disables rich output when piping or redirecting.
//
// The TUI package is designed to be script-friendly:
//   - Progress messages only appear when stderr is a TTY
//   - Colors are automatically disabled when piping or when NO_COLOR is set
//   - Markdown rendering for task descriptions
//
// Environment Variables:
//   - NO_COLOR or HSP_NO_COLOR: Disable colors (respects https://no-color.org/)
//   - TERM=dumb: Disable colors
//   - HSP_QUIET: Disable all UI output (progress messages)
//
// Example usage:
//
//	// Progress message (only shown in TTY)
//	tui.Progress("Running fdump...")
//	tui.ProgressSuccess("fdump finished")
//
//	// Render a task description
//	rendered, _ := tui.RenderMarkdown(help, 80)
//	fmt.Print(rendered)
package tui

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	EnvQuiet   = "HSP_QUIET"
	EnvNoColor = "HSP_NO_COLOR"
)

var (
	colorGreen = lipgloss.ANSIColor(2) // ANSI green
	colorRed   = lipgloss.ANSIColor(1) // ANSI red
	colorBlue  = lipgloss.ANSIColor(4) // ANSI blue
	colorCyan  = lipgloss.ANSIColor(6) // ANSI cyan
)

// UI provides terminal UI functionality with automatic TTY detection
type UI struct {
	// stdinIsTTY indicates if stdin is connected to a terminal
	stdinIsTTY bool
	// stdoutIsTTY indicates if stdout is connected to a terminal
	stdoutIsTTY bool
	// stderrIsTTY indicates if stderr is connected to a terminal
	stderrIsTTY bool
	// enabled indicates if UI output should be shown (TTY + not disabled)
	enabled bool
	// colorEnabled indicates if colors should be used
	colorEnabled bool
	// showProgress gates the spinner; it is off while task output is echoed
	showProgress bool
	// currentSpinner tracks the current spinner state
	currentSpinner *spinnerState
	// markdownRenderer for rendering markdown content
	markdownRenderer *glamour.TermRenderer
}

type spinnerState struct {
	started time.Time
	ticker  clockwork.Ticker
	message string
	done    chan struct{}
}

var (
	// defaultUI is the default UI instance
	defaultUI    *UI
	spinnerClock clockwork.Clock = clockwork.NewRealClock()

	// stderrRenderer uses stderr for TTY detection so colors work on stderr
	// even when stdout is piped
	stderrRenderer = lipgloss.NewRenderer(os.Stderr)

	spinnerStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorBlue)
	successStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorGreen).Bold(true)
	failureStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorRed).Bold(true)
	promptStyle  = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorCyan)
)

func init() {
	defaultUI = New()
}

// New creates a new UI instance with automatic TTY detection
func New() *UI {
	stdinIsTTY := IsTerminal(os.Stdin)
	stdoutIsTTY := IsTerminal(os.Stdout)
	stderrIsTTY := IsTerminal(os.Stderr)

	// Piped stdin means script usage: no spinner, and no prompts either.
	enabled := stderrIsTTY && stdinIsTTY && !isDisabled()
	colorEnabled := stderrIsTTY && !isColorDisabled()

	ui := &UI{
		stdinIsTTY:   stdinIsTTY,
		stdoutIsTTY:  stdoutIsTTY,
		stderrIsTTY:  stderrIsTTY,
		enabled:      enabled,
		colorEnabled: colorEnabled,
	}

	if colorEnabled && stdoutIsTTY {
		width := 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			ui.markdownRenderer = renderer
		}
	}

	return ui
}

// IsTerminal checks if a file descriptor is connected to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// isDisabled checks if UI is explicitly disabled via environment variables
func isDisabled() bool {
	if val := os.Getenv(EnvQuiet); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return true // Any non-empty value means disabled
	}
	return false
}

// isColorDisabled checks if colors are explicitly disabled
func isColorDisabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	if os.Getenv(EnvNoColor) != "" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	return false
}

// Enabled returns whether UI output should be shown
func (u *UI) Enabled() bool {
	return u.enabled
}

// ColorEnabled returns whether colors should be used
func (u *UI) ColorEnabled() bool {
	return u.colorEnabled
}

// Interactive reports whether a person can answer parameter prompts.
func (u *UI) Interactive() bool {
	return u.stdinIsTTY
}

// StdoutIsTTY returns whether stdout is a terminal
func (u *UI) StdoutIsTTY() bool {
	return u.stdoutIsTTY
}

// StderrIsTTY returns whether stderr is a terminal
func (u *UI) StderrIsTTY() bool {
	return u.stderrIsTTY
}

// SetShowProgress sets whether progress messages should be shown.
// The CLI turns it on only when the task's own output is not echoed.
func (u *UI) SetShowProgress(show bool) {
	u.showProgress = show
}

func (u *UI) renderFrame(s *spinnerState) {
	elapsed := spinnerClock.Since(s.started)
	frame := int(elapsed/spinner.Line.FPS) % len(spinner.Line.Frames)
	spinnerChar := spinner.Line.Frames[frame]

	if u.colorEnabled {
		fmt.Fprintf(os.Stderr, "\r%s %s", spinnerStyle.Render(spinnerChar), s.message)
	} else {
		fmt.Fprintf(os.Stderr, "\r%s %s", "...", s.message)
	}
}

// stopSpinner halts the animation goroutine and clears the spinner line.
func (u *UI) stopSpinner() *spinnerState {
	s := u.currentSpinner
	if s == nil {
		return nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.done != nil {
		close(s.done)
	}
	// Small delay to ensure goroutine has stopped printing
	time.Sleep(10 * time.Millisecond)
	fmt.Fprint(os.Stderr, "\r", ansi.EraseLine(2))
	u.currentSpinner = nil
	return s
}

// Progress shows a progress message with a spinner that animates in the
// background until ProgressSuccess or ProgressFailure is called.
// Example: "Running fdump..."
func (u *UI) Progress(message string) {
	if !u.showProgress || !u.enabled {
		return
	}

	if u.currentSpinner != nil && u.currentSpinner.message == message {
		u.renderFrame(u.currentSpinner)
		return
	}

	u.stopSpinner()

	state := &spinnerState{
		started: spinnerClock.Now(),
		message: message,
		done:    make(chan struct{}),
		ticker:  spinnerClock.NewTicker(100 * time.Millisecond),
	}
	u.currentSpinner = state

	// Print the first frame immediately rather than waiting for a tick
	u.renderFrame(state)

	go func() {
		for {
			select {
			case <-state.ticker.Chan():
				u.renderFrame(state)
			case <-state.done:
				return
			}
		}
	}()
}

// ProgressSuccess stops the spinner and shows a checkmark line
func (u *UI) ProgressSuccess(message string) {
	u.finish("ProgressSuccess", message, "✓", successStyle)
}

// ProgressFailure stops the spinner and shows a cross line
func (u *UI) ProgressFailure(message string) {
	u.finish("ProgressFailure", message, "✗", failureStyle)
}

func (u *UI) finish(caller, message, symbol string, style lipgloss.Style) {
	if !u.showProgress || !u.enabled {
		return
	}

	if u.currentSpinner == nil {
		zap.L().Error(caller + " called without a spinner")
		return
	}

	s := u.stopSpinner()
	if message == "" {
		message = s.message
	}
	if message == "" {
		return
	}

	if u.colorEnabled {
		symbol = style.Render(symbol)
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", symbol, message)
}

// Info prints an informational message to stderr
// Writes to stderr even when not a TTY (e.g., when piping output)
// Respects HSP_QUIET environment variable
func (u *UI) Info(format string, args ...any) {
	if isDisabled() {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// StylePrompt decorates a parameter question. It plugs into the prompt
// resolver's Style hook.
func (u *UI) StylePrompt(question string) string {
	if !u.colorEnabled {
		return question
	}
	return promptStyle.Render(question)
}

// RenderMarkdown renders markdown content using glamour
// Returns plain text if not in TTY or if rendering fails
func (u *UI) RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("width must be greater than 0")
	}

	if !u.stdoutIsTTY || !u.colorEnabled {
		return content, nil
	}

	renderer := u.markdownRenderer
	if renderer == nil {
		var err error
		renderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content, err
		}
	}

	return renderer.Render(content)
}

// Default returns the default UI instance
func Default() *UI {
	return defaultUI
}

// Reset resets the default UI instance (useful for testing)
func Reset() {
	defaultUI = New()
}

// Convenience functions that use the default UI instance

// Info prints an informational message using the default UI
func Info(format string, args ...any) {
	defaultUI.Info(format, args...)
}

// SetShowProgress toggles progress messages on the default UI
func SetShowProgress(show bool) {
	defaultUI.SetShowProgress(show)
}

// Progress prints a progress message using the default UI
func Progress(message string) {
	defaultUI.Progress(message)
}

// ProgressSuccess stops spinner and shows success using the default UI
func ProgressSuccess(message string) {
	defaultUI.ProgressSuccess(message)
}

// ProgressFailure stops spinner and shows failure using the default UI
func ProgressFailure(message string) {
	defaultUI.ProgressFailure(message)
}

// StylePrompt decorates a parameter question using the default UI
func StylePrompt(question string) string {
	return defaultUI.StylePrompt(question)
}

// RenderMarkdown renders markdown content using the default UI
func RenderMarkdown(content string, width int) (string, error) {
	return defaultUI.RenderMarkdown(content, width)
}
