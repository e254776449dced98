package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"adfbridge/internal/response"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// printResult writes one line per result and returns res.Err() so the
// command exits non-zero on failure.
func printResult(w io.Writer, label string, res response.Result) error {
	if res.Succeeded {
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓"), label)
		if res.Payload != nil {
			if data, err := json.Marshal(res.Payload); err == nil {
				fmt.Fprintln(w, mutedStyle.Render(string(data)))
			}
		}
		return nil
	}
	fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render("✗"), label, res.ErrorMessage)
	return res.Err()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
