package utils

import (
	"path"
	"strings"
	"unicode/utf8"
)

// CleanUTF8 removes invalid UTF8 and NUL characters from a string.
// Returns the cleaned string and whether cleaning was needed.
func CleanUTF8(input string) (string, bool) {
	needsCleaning := strings.Contains(input, "\x00") || !utf8.ValidString(input)

	if !needsCleaning {
		return input, false
	}

	cleaned := strings.ToValidUTF8(input, "")
	cleaned = strings.ReplaceAll(cleaned, "\x00", "")

	return cleaned, true
}

// CleanFilename reduces a client-supplied filename to its base name with valid UTF8.
func CleanFilename(name string) string {
	cleaned, _ := CleanUTF8(name)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	cleaned = strings.TrimSpace(path.Base(cleaned))

	if cleaned == "." || cleaned == "/" || cleaned == "" {
		return "unnamed"
	}
	return cleaned
}
