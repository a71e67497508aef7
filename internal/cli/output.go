// Package cli provides the command-line interface for the investdesk client.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"investdesk/pkg/utils"
)

// tone is the role a piece of text plays on screen.
type tone int

const (
	tonePlain tone = iota
	toneGood
	toneBad
	toneWarn
	toneNote
	toneAccent
	toneStrong
	toneFaint
	toneCount
)

var toneAttrs = [toneCount]color.Attribute{
	tonePlain:  color.Reset,
	toneGood:   color.FgGreen,
	toneBad:    color.FgRed,
	toneWarn:   color.FgYellow,
	toneNote:   color.FgCyan,
	toneAccent: color.FgMagenta,
	toneStrong: color.Bold,
	toneFaint:  color.Faint,
}

// Output writes command results either as colored text or as indented JSON.
type Output struct {
	w       io.Writer
	json    bool
	colored bool
	palette [toneCount]*color.Color
}

// NewOutput reads --json from cmd. Color is used only when stdout is a
// terminal and JSON is off.
func NewOutput(cmd *cobra.Command) *Output {
	asJSON, _ := cmd.Flags().GetBool("json")
	return newOutput(cmd.OutOrStdout(), asJSON, !asJSON && stdoutIsTTY())
}

func newOutput(w io.Writer, asJSON, colored bool) *Output {
	o := &Output{w: w, json: asJSON, colored: colored}
	for t, attr := range toneAttrs {
		c := color.New(attr)
		if colored && tone(t) != tonePlain {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		o.palette[t] = c
	}
	return o
}

func stdoutIsTTY() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func (o *Output) IsJSON() bool { return o.json }

// JSON encodes v with two-space indentation.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) { fmt.Fprintln(o.w, args...) }

func (o *Output) Printf(format string, args ...interface{}) { fmt.Fprintf(o.w, format, args...) }

// Tint wraps text in the color for t.
func (o *Output) Tint(t tone, text string) string { return o.palette[t].Sprint(text) }

func (o *Output) say(t tone, format string, args ...interface{}) {
	o.Println(o.palette[t].Sprintf(format, args...))
}

func (o *Output) Success(format string, args ...interface{}) { o.say(toneGood, format, args...) }
func (o *Output) Error(format string, args ...interface{})   { o.say(toneBad, format, args...) }
func (o *Output) Warning(format string, args ...interface{}) { o.say(toneWarn, format, args...) }
func (o *Output) Info(format string, args ...interface{})    { o.say(toneNote, format, args...) }
func (o *Output) Bold(format string, args ...interface{})    { o.say(toneStrong, format, args...) }
func (o *Output) Dim(format string, args ...interface{})     { o.say(toneFaint, format, args...) }

// FormatPnL renders a signed amount, green when up and red when down.
func (o *Output) FormatPnL(pnl decimal.Decimal, currency string) string {
	return o.Tint(signTone(pnl), utils.FormatPnL(pnl, currency))
}

func signTone(d decimal.Decimal) tone {
	switch d.Sign() {
	case 1:
		return toneGood
	case -1:
		return toneBad
	}
	return tonePlain
}

// Side colors a trade side or signal action.
func (o *Output) Side(side string) string {
	switch strings.ToLower(side) {
	case "buy":
		return o.Tint(toneGood, side)
	case "sell":
		return o.Tint(toneBad, side)
	}
	return o.Tint(toneWarn, side)
}

var statusTones = map[string]tone{
	"approved":  toneGood,
	"completed": toneGood,
	"active":    toneGood,
	"declined":  toneBad,
	"rejected":  toneBad,
	"inactive":  toneBad,
	"pending":   toneWarn,
}

// Status colors a transfer or account status.
func (o *Output) Status(status string) string {
	return o.Tint(statusTones[strings.ToLower(status)], status)
}

// Table collects rows and prints them in aligned columns. Cell widths ignore
// color codes.
type Table struct {
	out     *Output
	columns []string
	rows    [][]string
}

func NewTable(out *Output, columns ...string) *Table {
	return &Table{out: out, columns: columns}
}

func (t *Table) AddRow(cells ...string) { t.rows = append(t.rows, cells) }

func (t *Table) Render() {
	if len(t.columns) == 0 {
		return
	}
	widths := columnWidths(t.columns, t.rows)

	heading := make([]string, len(t.columns))
	rules := make([]string, len(t.columns))
	for i, c := range t.columns {
		heading[i] = t.out.Tint(toneStrong, pad(c, widths[i]))
		rules[i] = strings.Repeat("─", widths[i])
	}
	t.out.Println(strings.TrimRight(strings.Join(heading, "  "), " "))
	t.out.Println(t.out.Tint(toneFaint, strings.Join(rules, "──")))

	for _, row := range t.rows {
		cells := make([]string, 0, len(widths))
		for i := 0; i < len(row) && i < len(widths); i++ {
			cells = append(cells, pad(row[i], widths[i]))
		}
		t.out.Println(strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func columnWidths(columns []string, rows [][]string) []int {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = visibleLen(c)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleLen(row[i]))
		}
	}
	return widths
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-visibleLen(s)))
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

func visibleLen(s string) int { return len([]rune(stripANSI(s))) }

// Box prints lines inside a frame with title as its first row.
func (o *Output) Box(title string, lines []string) {
	inner := visibleLen(title)
	for _, l := range lines {
		inner = max(inner, visibleLen(l))
	}
	edge := func(left, right string) {
		o.Println(o.Tint(toneFaint, left+strings.Repeat("─", inner+2)+right))
	}
	row := func(text string) {
		bar := o.Tint(toneFaint, "│")
		o.Printf("%s %s %s\n", bar, pad(text, inner), bar)
	}

	edge("┌", "┐")
	row(o.Tint(toneStrong, title))
	edge("├", "┤")
	for _, l := range lines {
		row(l)
	}
	edge("└", "┘")
}
