// Package export renders the window model as markdown or JSON documents.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/lifecycle"
)

// Markdown formats every window in tree order as a markdown document.
func Markdown(mgr *lifecycle.Manager, profile string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tabs: %s\n", profile)
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, w := range mgr.Windows() {
		b.WriteString("\n")
		writeWindow(&b, mgr, w)
	}

	return b.String()
}

// WindowMarkdown formats a single window.
func WindowMarkdown(mgr *lifecycle.Manager, w *detail.Window) string {
	var b strings.Builder
	writeWindow(&b, mgr, w)
	return b.String()
}

func writeWindow(b *strings.Builder, mgr *lifecycle.Manager, w *detail.Window) {
	view := mgr.Presenter()
	tabs := mgr.Tabs(w)

	n := len(tabs)
	noun := "tabs"
	if n == 1 {
		noun = "tab"
	}
	fmt.Fprintf(b, "## %s (%d %s)\n\n", view.WindowTitle(w), n, noun)
	if names := w.Subtypes.Names(); len(names) > 0 {
		fmt.Fprintf(b, "_%s_\n\n", strings.Join(names, ", "))
	}

	for _, tab := range tabs {
		title := view.TabTitle(tab)
		bullet := ""
		if tab.RawBullet != "" {
			bullet = "**" + tab.RawBullet + "** "
		}
		fmt.Fprintf(b, "- %s[%s](%s)\n", bullet, escapeBrackets(title), tab.RawURL)
	}
}

func escapeBrackets(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}
