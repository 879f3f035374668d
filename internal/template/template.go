// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package template compiles the user configurable text templates of the text output.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/wneessen/feature-proximity/internal/attrmap"
)

// New parses text as a template with the output helper functions available
func New(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Funcs(FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tpl, nil
}

// FuncMap returns the functions available in all output templates
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":  timeFormat,
		"floatFormat": floatFormat,
		"milesFormat": milesFormat,
		"pad":         Pad,
		"attr":        attr,
		"lc":          strings.ToLower,
		"uc":          strings.ToUpper,
	}
}

// Pad fills val with spaces to the given display width. Longer values are truncated with an
// ellipsis. Wide runes are accounted for.
func Pad(val any, width int) string {
	str := fmt.Sprint(val)
	if width <= 0 {
		return str
	}
	if runewidth.StringWidth(str) > width {
		str = runewidth.Truncate(str, width, "…")
	}
	return runewidth.FillRight(str, width)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func floatFormat(val float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, val)
}

func milesFormat(val float64) string {
	return fmt.Sprintf("%.2f mi", val)
}

// attr returns the first present attribute of the given names, formatted for display
func attr(attrs map[string]any, names ...string) string {
	val, _ := attrmap.LookupString(attrs, names...)
	return val
}
