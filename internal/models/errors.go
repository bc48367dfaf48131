// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Taxonomy
// ============================================================================
// Four error classes cover every failure surfaced by the service:
//
//   - ValidationError: caller supplied bad input
//   - ConnectivityError: an upstream (Telegram, Discord, WeCom, Emby, TMDB)
//     could not be reached or rejected the request
//   - MissingReferenceError: a referenced entity (template, channel) no
//     longer exists
//   - RenderError: template or image rendering failed
//
// The API layer maps these to HTTP status codes; everything else is a 500.

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrNotFound indicates a store lookup for a missing key.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (duplicate name).
	ErrConflict = errors.New("conflict")
)

// ValidationError reports invalid caller input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Code returns the stable error code for API responses.
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// ConnectivityError reports a failed interaction with an upstream service.
type ConnectivityError struct {
	Upstream string // "telegram", "discord", "wecom", "emby", "tmdb"
	Detail   string
	Err      error
}

// NewConnectivityError builds a ConnectivityError, wrapping cause if any.
func NewConnectivityError(upstream, detail string, cause error) *ConnectivityError {
	return &ConnectivityError{Upstream: upstream, Detail: detail, Err: cause}
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Upstream, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Upstream, e.Detail)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Code returns the stable error code for API responses.
func (e *ConnectivityError) Code() string { return "CONNECTIVITY_ERROR" }

// MissingReferenceError reports a dangling reference to a deleted entity.
// Dispatch treats it as a per-channel skip, never a fatal error.
type MissingReferenceError struct {
	Kind string // "template", "channel"
	ID   string
}

// NewMissingReferenceError builds a MissingReferenceError.
func NewMissingReferenceError(kind, id string) *MissingReferenceError {
	return &MissingReferenceError{Kind: kind, ID: id}
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s %s no longer exists", e.Kind, e.ID)
}

// Code returns the stable error code for API responses.
func (e *MissingReferenceError) Code() string { return "MISSING_REFERENCE" }

// RenderError reports a template or report-image rendering failure.
type RenderError struct {
	Stage string // "template", "image"
	Err   error
}

// NewRenderError builds a RenderError wrapping the cause.
func NewRenderError(stage string, cause error) *RenderError {
	return &RenderError{Stage: stage, Err: cause}
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Code returns the stable error code for API responses.
func (e *RenderError) Code() string { return "RENDER_ERROR" }

// ErrorCode extracts the stable code from any taxonomy error, falling
// back to INTERNAL_ERROR for unclassified failures.
func ErrorCode(err error) string {
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	if errors.Is(err, ErrNotFound) {
		return "NOT_FOUND"
	}
	if errors.Is(err, ErrConflict) {
		return "CONFLICT"
	}
	return "INTERNAL_ERROR"
}
