package dialogs

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]Keys[-]

  [green]↑/k[-]      Older record
  [green]↓/j[-]      Newer record
  [green]g/G[-]      Newest / oldest record
  [green]Enter/u[-]  Usage gauges and sparklines
  [green]r[-]        Probe the Claude CLI now
  [green]?[-]        This help
  [green]q[-]        Quit

The list refreshes on its own after every poll.

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
