package validator

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateStruct(t *testing.T) {
	type GoalInput struct {
		Goal     string   `json:"today_goal" validate:"required,min=50,max=2000"`
		Percent  *int     `json:"completion_percentage" validate:"gte=0,lte=100"`
		Status   string   `json:"goal_status" validate:"required,oneof=ACHIEVED NOT_ACHIEVED"`
		Notes    *string  `json:"notes" validate:"max=10"`
		TaskRefs []string `json:"task_refs" validate:"max=2"`
	}

	pct := func(v int) *int { return &v }
	str := func(v string) *string { return &v }
	goal := strings.Repeat("g", 50)

	tests := []struct {
		name      string
		input     GoalInput
		wantField string
	}{
		{
			name:  "valid struct",
			input: GoalInput{Goal: goal, Percent: pct(40), Status: "ACHIEVED"},
		},
		{
			name:      "goal too short",
			input:     GoalInput{Goal: strings.Repeat("g", 49), Status: "ACHIEVED"},
			wantField: "today_goal",
		},
		{
			name:      "goal too long",
			input:     GoalInput{Goal: strings.Repeat("g", 2001), Status: "ACHIEVED"},
			wantField: "today_goal",
		},
		{
			name:      "whitespace goal is missing",
			input:     GoalInput{Goal: "   ", Status: "ACHIEVED"},
			wantField: "today_goal",
		},
		{
			name:      "percentage above range",
			input:     GoalInput{Goal: goal, Percent: pct(101), Status: "ACHIEVED"},
			wantField: "completion_percentage",
		},
		{
			name:      "percentage below range",
			input:     GoalInput{Goal: goal, Percent: pct(-1), Status: "ACHIEVED"},
			wantField: "completion_percentage",
		},
		{
			name:      "status not allowed",
			input:     GoalInput{Goal: goal, Status: "MAYBE"},
			wantField: "goal_status",
		},
		{
			name:      "optional pointer too long",
			input:     GoalInput{Goal: goal, Status: "ACHIEVED", Notes: str("this is too long")},
			wantField: "notes",
		},
		{
			name:      "too many task refs",
			input:     GoalInput{Goal: goal, Status: "ACHIEVED", TaskRefs: []string{"a", "b", "c"}},
			wantField: "task_refs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateStruct() error = %v, want ValidationErrors", err)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("first failing field = %q, want %q", verrs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidateStructCountsRunes(t *testing.T) {
	type Input struct {
		Title string `json:"title" validate:"max=3"`
	}

	// Three characters, nine bytes
	if err := ValidateStruct(Input{Title: "äöü"}); err != nil {
		t.Errorf("multi-byte characters should be counted once: %v", err)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email    string
		expected bool
	}{
		{"test@example.com", true},
		{"user.name@example.co.uk", true},
		{"invalid-email", false},
		{"@example.com", false},
		{"user@", false},
		{"", false},
		{"user@example", false},
	}

	for _, tt := range tests {
		err := ValidateEmail(tt.email)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidateEmail(%q) = %v, expected %v", tt.email, isValid, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		expected bool
	}{
		{"password123", true},
		{"12345678", true},
		{"short", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidatePassword(%q) = %v, expected %v", tt.password, isValid, tt.expected)
		}
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Test@Example.com", "test@example.com"},
		{"  USER@EXAMPLE.COM  ", "user@example.com"},
		{"a\x00b@example.com", "ab@example.com"},
	}

	for _, tt := range tests {
		result := SanitizeEmail(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeEmail(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}
