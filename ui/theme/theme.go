// Package theme holds the palette and ttk styles of the alignment window.
package theme

import (
	"github.com/soocke/needle-align/domain/align"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	ColorBg        = "#f7f9fb"
	ColorSurface   = "#ffffff"
	ColorBorder    = "#d0d7de"
	ColorPrimary   = "#2563eb"
	ColorDanger    = "#dc2626"
	ColorAccent    = "#10b981"
	ColorWarning   = "#d97706"
	ColorText      = "#1e293b"
	ColorTextMuted = "#64748b"
)

// Style names used with Style("primary.TButton") etc.
const (
	StylePrimaryButton = "primary.TButton"
	StyleDangerButton  = "danger.TButton"
	StyleStateLabel    = "state.TLabel"
)

var darkMode bool

// StateColor returns the background used for the state label while in s.
func StateColor(s align.State) string {
	switch s {
	case align.StateSearching, align.StateAdjusting:
		return ColorPrimary
	case align.StateConverged:
		return ColorAccent
	case align.StateTimedOut, align.StateAborted:
		return ColorWarning
	case align.StateFaulted:
		return ColorDanger
	default:
		return ColorTextMuted
	}
}

// InitStyles (re)applies styles for the current mode.
func InitStyles() { applyStyles(darkMode) }

// SetDark switches dark mode and reapplies styles.
func SetDark(dark bool) bool {
	darkMode = dark
	applyStyles(darkMode)
	return darkMode
}

func IsDark() bool { return darkMode }

func applyStyles(dark bool) {
	_ = ActivateTheme("azure light")
	bg, primary, danger := ColorBg, ColorPrimary, ColorDanger
	if dark {
		bg, primary, danger = "#0f172a", "#3b82f6", "#ef4444"
	}
	App.Configure(Background(bg))
	StyleConfigure(StylePrimaryButton,
		Background(primary),
		Foreground("white"),
		Padding("4p 3p"),
		Borderwidth(1),
		Relief("ridge"),
	)
	StyleConfigure(StyleDangerButton,
		Background(danger),
		Foreground("white"),
		Padding("4p 3p"),
		Borderwidth(1),
		Relief("ridge"),
	)
	StyleConfigure(StyleStateLabel,
		Foreground("white"),
		Background(ColorAccent),
		Padding("4p 2p"),
		Borderwidth(1),
		Relief("groove"),
	)
}
