package catalog

import (
	"regexp"
	"strings"
)

// Key builds the package key "name-version".
func Key(name, version string) string {
	return name + "-" + version
}

var keyRegex = regexp.MustCompile(`^(.+?)-([0-9]+\.[0-9]+\.[0-9]+(?:[-+][0-9A-Za-z.+-]*)?)$`)

// SplitKey splits a package key into crate name and version. Crate names may
// contain dashes ("serde-json-1.0.0") and versions may carry a pre-release
// suffix ("foo-1.0.0-beta.1"), so the version is the shortest trailing
// semver-shaped suffix. Keys without a full semver fall back to splitting at
// the last '-' followed by a digit. ok is false for bare names.
func SplitKey(key string) (name, version string, ok bool) {
	if m := keyRegex.FindStringSubmatch(key); m != nil {
		return m[1], m[2], true
	}
	i := strings.LastIndexByte(key, '-')
	if i <= 0 || i == len(key)-1 {
		return key, "", false
	}
	if c := key[i+1]; c < '0' || c > '9' {
		return key, "", false
	}
	return key[:i], key[i+1:], true
}

// NameOf returns the crate name part of a key, or the input itself when it
// carries no version.
func NameOf(key string) string {
	name, _, _ := SplitKey(key)
	return name
}

// HasVersion reports whether ref names an exact version ("foo-1.2.3").
func HasVersion(ref string) bool {
	_, _, ok := SplitKey(ref)
	return ok
}

// NormalizeName maps a Rust path segment to the crate name it refers to.
func NormalizeName(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}
