package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// cratesPackageNameRegex matches valid crates.io package names.
var cratesPackageNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ValidateCrateName validates a crates.io package name before it is used to
// build registry URLs or directory names.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - Maximum length of 64 characters (the crates.io limit)
//   - ASCII letters, digits, '-' and '_' only, starting with a letter
func ValidateCrateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "crate name cannot be empty")
	}
	if len(name) > 64 {
		return New(ErrCodeInvalidPackage, "crate name too long (max 64 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "crate name contains invalid control characters")
		}
	}
	if !cratesPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid crate name: %q", name)
	}
	return nil
}

// versionRegex matches the version strings crates.io publishes (semver with
// optional pre-release and build metadata).
var versionRegex = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+([-+][0-9A-Za-z.+-]*)?$`)

// ValidateVersion validates an exact crate version.
func ValidateVersion(version string) error {
	if version == "" {
		return New(ErrCodeInvalidInput, "version cannot be empty")
	}
	if !versionRegex.MatchString(version) {
		return New(ErrCodeInvalidInput, "invalid version: %q", version)
	}
	return nil
}

// ValidatePath validates a file path within a package for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No parent directory components (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "absolute paths are not allowed")
	}
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return New(ErrCodeInvalidPath, "'..' is not allowed")
		}
	}
	return nil
}
