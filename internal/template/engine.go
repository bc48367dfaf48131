// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package template implements the single-brace placeholder language
// used by notification templates: "{name}" substitutes the context
// value for "name". Rendering is total: missing keys become the empty
// string and malformed braces pass through as literal text.
package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// placeholderName reports whether s is a legal placeholder name:
// non-empty, letters/digits/underscores only.
func placeholderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// ExtractVariables returns the distinct placeholder names in content,
// sorted for stable output. "{24h}" counts; "{not closed" and "{bad
// name}" do not.
func ExtractVariables(content string) []string {
	seen := make(map[string]bool)
	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}
		end := strings.IndexByte(content[i+1:], '}')
		if end < 0 {
			break
		}
		name := content[i+1 : i+1+end]
		if placeholderName(name) {
			seen[name] = true
			i += end + 1
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render substitutes context values into content. Keys absent from the
// context render as the empty string. Render never returns an error.
func Render(content string, context map[string]any) string {
	var b strings.Builder
	b.Grow(len(content))

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(content[i+1:], '}')
		if end < 0 {
			b.WriteString(content[i:])
			break
		}
		name := content[i+1 : i+1+end]
		if !placeholderName(name) {
			b.WriteByte(c)
			continue
		}
		if v, ok := context[name]; ok {
			b.WriteString(Stringify(v))
		}
		i += end + 1
	}
	return b.String()
}

// Stringify formats a context value for substitution. Floats drop
// trailing zeros so "2.50" hours renders as "2.5".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
