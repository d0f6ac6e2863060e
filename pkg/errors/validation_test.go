package errors

import (
	"strings"
	"testing"
)

func TestValidateCrateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "serde", false},
		{"with dash", "serde-json", false},
		{"with underscore", "serde_json", false},
		{"digits", "base64", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"leading digit", "1password", true},
		{"slash", "foo/bar", true},
		{"dot dot", "..", true},
		{"control char", "foo\x01bar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCrateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCrateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1.0.0", false},
		{"0.12.3-beta.1", false},
		{"1.0.0+build.5", false},
		{"", true},
		{"1.0", true},
		{"latest", true},
		{"1.0.0/../x", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "src/lib.rs", false},
		{"nested", "src/a/b/mod.rs", false},
		{"dotted name", "src/..hidden.rs", false},

		{"empty", "", true},
		{"parent", "../etc/passwd", true},
		{"inner parent", "src/../../x", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", "src\\lib.rs", true},
		{"null byte", "src/lib\x00.rs", true},
		{"too long", strings.Repeat("a/", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && tt.input != "" && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) code = %v, want INVALID_PATH", tt.input, GetCode(err))
			}
		})
	}
}
