// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package attrmap resolves dataset specific attribute names into canonical names using a
// declarative alias table.
//
// Aliases are tried in the order they are listed. An exact match always wins over a
// case-insensitive match. If several keys match an alias case-insensitively, the keys are
// tried in byte order. Nil values and empty strings count as missing, so the next alias
// is tried.
package attrmap

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Table maps a canonical attribute name to the ordered list of aliases a dataset might use for it
type Table map[string][]string

// Apply resolves all canonical names of the table against attrs. Canonical names that could not
// be resolved are omitted. The input map is not modified.
func (t Table) Apply(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(t))
	for canonical, aliases := range t {
		if val, ok := Lookup(attrs, aliases...); ok {
			out[canonical] = val
		}
	}
	return out
}

// Lookup returns the value of the first alias that is present in attrs
func Lookup(attrs map[string]any, aliases ...string) (any, bool) {
	if len(attrs) == 0 {
		return nil, false
	}
	for _, alias := range aliases {
		if val, ok := attrs[alias]; ok && present(val) {
			return val, true
		}
	}

	// keys differing only in case are resolved in byte order
	keys := slices.Sorted(maps.Keys(attrs))
	for _, alias := range aliases {
		for _, key := range keys {
			if val := attrs[key]; strings.EqualFold(key, alias) && present(val) {
				return val, true
			}
		}
	}
	return nil, false
}

// LookupString returns the first present alias formatted as string
func LookupString(attrs map[string]any, aliases ...string) (string, bool) {
	val, ok := Lookup(attrs, aliases...)
	if !ok {
		return "", false
	}
	return FormatValue(val), true
}

// FormatValue formats an attribute value for use as key or display value. Integral numbers
// are formatted without a fractional part.
func FormatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func present(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}
