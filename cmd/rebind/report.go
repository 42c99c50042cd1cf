package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-rebind/loader"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

// styler applies lipgloss styles only on terminals.
type styler struct {
	color bool
}

func newStyler(w io.Writer) styler {
	f, ok := w.(*os.File)
	return styler{color: ok && term.IsTerminal(int(f.Fd()))}
}

func (s styler) render(st lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return st.Render(text)
}

func writeReport(w io.Writer, entry string, report []loader.ModuleReport, loadErr error) {
	s := newStyler(w)
	fmt.Fprintln(w, s.render(titleStyle, "rebind "+entry))

	for _, rep := range report {
		status := "unchanged"
		switch {
		case !rep.Committed:
			status = s.render(errorStyle, "failed")
		case rep.Changed:
			status = "rewritten"
		}
		fmt.Fprintf(w, "  %s  %s (%d bytes)\n", s.render(nameStyle, rep.Name), status, rep.Size)

		if len(rep.Removed) > 0 {
			fmt.Fprintf(w, "    %s\n", s.render(detailStyle,
				fmt.Sprintf("swapped %s -> %s", strings.Join(rep.Removed, ", "), strings.Join(rep.Added, ", "))))
		}
		for _, rp := range rep.Repointed {
			fmt.Fprintf(w, "    %s\n", s.render(detailStyle,
				fmt.Sprintf("import %s: %s -> %s", rp.Name, rp.From, rp.To)))
		}
		if rep.Rewrites > 0 {
			fmt.Fprintf(w, "    %s\n", s.render(detailStyle, fmt.Sprintf("%d instruction rewrites", rep.Rewrites)))
		}
		if len(rep.Stubbed) > 0 {
			fmt.Fprintf(w, "    %s\n", s.render(warnStyle,
				"stubbed (traps when called): "+strings.Join(rep.Stubbed, ", ")))
		}
		for _, warn := range rep.Warnings {
			fmt.Fprintf(w, "    %s\n", s.render(warnStyle, "warning: "+warn))
		}
	}

	if loadErr != nil {
		fmt.Fprintf(w, "%s\n", s.render(errorStyle, "error: "+loadErr.Error()))
	}
}
