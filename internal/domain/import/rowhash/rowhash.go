// Package rowhash computes per-row fingerprints for duplicate detection.
// The digest is a truncated rolling hash used purely for equality
// comparison, not a security boundary.
package rowhash

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

const separator = "|"

// Fingerprint hashes one row's raw field values into a fixed-format digest.
// The fields are joined with a separator, folded through a 32-bit rolling
// multiply-and-add over the string's UTF-16 code units, and the absolute
// value is rendered as lowercase hex padded to 8 characters. The function is
// pure: identical field values always produce the identical digest, which is
// what duplicate detection between staging rows and stored transaction
// fingerprints relies on.
func Fingerprint(fields []string) string {
	joined := strings.Join(fields, separator)

	var h int32
	for _, unit := range utf16.Encode([]rune(joined)) {
		h = h*31 + int32(unit)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%08x", v)
}
