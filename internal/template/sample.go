// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package template

import "time"

// knownSampleValues provides realistic preview values for common
// placeholder names.
var knownSampleValues = map[string]any{
	"server":         "Emby",
	"user":           "alice",
	"item":           "Inception",
	"type":           "Movie",
	"event":          "playback.stop",
	"total_plays":    42,
	"total_hours":    17.5,
	"top_item":       "Inception",
	"active_users":   6,
	"top_user":       "alice",
	"top_user_plays": 12,
	"version":        "4.8.0.0",
}

// SampleContext builds a preview context for the given variables. Names
// without a known sample get "<name>" so the preview shows where they
// land.
func SampleContext(variables []string) map[string]any {
	now := time.Now()
	ctx := make(map[string]any, len(variables))
	for _, name := range variables {
		switch name {
		case "date":
			ctx[name] = now.Format("2006-01-02")
		case "datetime":
			ctx[name] = now.Format("2006-01-02 15:04")
		default:
			if v, ok := knownSampleValues[name]; ok {
				ctx[name] = v
			} else {
				ctx[name] = "<" + name + ">"
			}
		}
	}
	return ctx
}
