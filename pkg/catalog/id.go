package catalog

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// IDLength is the number of hex characters in a declaration identifier.
const IDLength = 8

// ID derives the identifier of a declaration from the package key, the file
// path relative to the package root, the declaration name, its 1-based start
// line and its kind tag.
//
// The 64-bit xxhash digest is rendered as 16 hex digits and truncated to the
// leading 8, so identifiers are not guaranteed unique. Each field is length
// prefixed before hashing so that ("ab","c") and ("a","bc") never share input.
func ID(pkgKey, file, name string, line int, kind Kind) string {
	d := xxhash.New()
	writeField(d, pkgKey)
	writeField(d, file)
	writeField(d, name)
	writeField(d, strconv.Itoa(line))
	writeField(d, string(kind))
	return fmt.Sprintf("%016x", d.Sum64())[:IDLength]
}

func writeField(d *xxhash.Digest, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(s)
}

// ValidID reports whether s has the shape of a declaration identifier.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	return strings.Trim(s, "0123456789abcdef") == ""
}
