package ui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/zsprackett/claude-usage/internal/format"
)

// Theme colors for the TUI.
var (
	ColorBackground      = tcell.NewHexColor(0x1e1e2e)
	ColorBackgroundPanel = tcell.NewHexColor(0x181825)
	ColorBackgroundElem  = tcell.NewHexColor(0x313244)
	ColorPrimary         = tcell.NewHexColor(0x89b4fa) // blue
	ColorAccent          = tcell.NewHexColor(0xcba6f7) // mauve
	ColorText            = tcell.NewHexColor(0xcdd6f4)
	ColorTextMuted       = tcell.NewHexColor(0x6c7086)
	ColorSuccess         = tcell.NewHexColor(0xa6e3a1) // green
	ColorWarning         = tcell.NewHexColor(0xf9e2af) // yellow
	ColorError           = tcell.NewHexColor(0xf38ba8) // red
	ColorBorder          = tcell.NewHexColor(0x45475a)
	ColorSelected        = tcell.NewHexColor(0x89b4fa)
	ColorSelectedText    = tcell.NewHexColor(0x1e1e2e)
)

// Quota icons
const (
	IconGood     = "●"
	IconWarning  = "◐"
	IconCritical = "○"
	IconUnknown  = "◻"
	IconError    = "✗"
)

// ClassIcon maps a waybar class to the icon and color used for it.
func ClassIcon(class string) (string, tcell.Color) {
	switch class {
	case format.ClassGood:
		return IconGood, ColorSuccess
	case format.ClassWarning:
		return IconWarning, ColorWarning
	case format.ClassCritical:
		return IconCritical, ColorError
	case format.ClassError:
		return IconError, ColorError
	default:
		return IconUnknown, ColorTextMuted
	}
}
