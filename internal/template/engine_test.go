// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package template

import (
	"reflect"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "simple placeholders",
			content: "Hello {user}, you watched {item}",
			want:    []string{"item", "user"},
		},
		{
			name:    "duplicates collapse to a set",
			content: "{user} and {user} and {user}",
			want:    []string{"user"},
		},
		{
			name:    "unclosed brace is not a placeholder",
			content: "broken {user",
			want:    []string{},
		},
		{
			name:    "name with spaces is literal text",
			content: "{not a name} but {valid_1}",
			want:    []string{"valid_1"},
		},
		{
			name:    "empty braces ignored",
			content: "{} {x}",
			want:    []string{"x"},
		},
		{
			name:    "no placeholders",
			content: "plain text",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVariables(tt.content)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVariables(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		content string
		context map[string]any
		want    string
	}{
		{
			name:    "basic substitution",
			content: "Hello {user}",
			context: map[string]any{"user": "alice"},
			want:    "Hello alice",
		},
		{
			name:    "missing key renders empty",
			content: "Hello {user}, watched {item}!",
			context: map[string]any{"user": "alice"},
			want:    "Hello alice, watched !",
		},
		{
			name:    "nil context renders all empty",
			content: "{a}{b}",
			context: nil,
			want:    "",
		},
		{
			name:    "numbers formatted plainly",
			content: "{plays} plays, {hours} h",
			context: map[string]any{"plays": 42, "hours": 17.5},
			want:    "42 plays, 17.5 h",
		},
		{
			name:    "unclosed brace passes through",
			content: "literal {unclosed",
			context: map[string]any{"unclosed": "x"},
			want:    "literal {unclosed",
		},
		{
			name:    "invalid name passes through",
			content: "{not a name}",
			context: map[string]any{"not a name": "x"},
			want:    "{not a name}",
		},
		{
			name:    "adjacent placeholders",
			content: "{a}{b}{a}",
			context: map[string]any{"a": "1", "b": "2"},
			want:    "121",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.content, tt.context); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestSampleContextCoversAllVariables(t *testing.T) {
	vars := []string{"user", "date", "something_custom"}
	ctx := SampleContext(vars)
	for _, v := range vars {
		if _, ok := ctx[v]; !ok {
			t.Errorf("sample context missing %q", v)
		}
	}
	rendered := Render("{user} {date} {something_custom}", ctx)
	if rendered == "  " {
		t.Error("sample render produced empty values")
	}
}
