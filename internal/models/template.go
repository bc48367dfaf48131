// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import (
	"strings"
	"time"
)

// ============================================================================
// Notification Template Models
// ============================================================================

// NotificationTemplate is a stored message template. Placeholders use
// single braces: "{name}". Variables holds the distinct placeholder
// names extracted from TemplateContent at save time.
type NotificationTemplate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Channel         string    `json:"channel"`
	TemplateContent string    `json:"template_content"`
	Variables       []string  `json:"variables"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks required template fields.
func (t *NotificationTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if strings.TrimSpace(t.Channel) == "" {
		return NewValidationError("channel", "channel is required")
	}
	if t.TemplateContent == "" {
		return NewValidationError("template_content", "template_content is required")
	}
	return nil
}

// TemplateRenderRequest is the body for the render/preview endpoint.
type TemplateRenderRequest struct {
	Context map[string]any `json:"context"`
}

// TemplateRenderResult is the rendered output with the variables that
// were actually substituted.
type TemplateRenderResult struct {
	Content   string   `json:"content"`
	Variables []string `json:"variables"`
}
