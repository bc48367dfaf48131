// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package logging

import "strings"

// sensitiveKeys are field names whose values must never appear in logs
// in full. Matching is substring, case-insensitive.
var sensitiveKeys = []string{
	"token", "secret", "api_key", "apikey", "password", "webhook",
}

// IsSensitiveKey reports whether a field name holds secret material.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redact masks all but the last four characters of a secret value.
func Redact(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// RedactValue masks v when its key names secret material, otherwise
// returns it unchanged. Use when logging config maps wholesale.
func RedactValue(key, v string) string {
	if IsSensitiveKey(key) {
		return Redact(v)
	}
	return v
}
